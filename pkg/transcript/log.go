package transcript

import (
	"strings"
	"sync"
)

// Log is an ordered, append-only transcript safe for concurrent readers.
// Its cumulative text is one "User: ..." or "Agent: ..." line per turn.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	text  strings.Builder
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{}
}

// Append adds turns in order
func (l *Log) Append(turns ...Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, turn := range turns {
		l.turns = append(l.turns, turn)
		l.text.WriteString(turn.Line())
		l.text.WriteByte('\n')
	}
}

// Turns returns a copy of all turns
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

// Text returns the cumulative transcript text
func (l *Log) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text.String()
}

// Len returns the length in bytes of the cumulative text
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text.Len()
}

// Count returns the number of turns
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}
