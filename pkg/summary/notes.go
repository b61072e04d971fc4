// Package summary periodically condenses new transcript text into notes.
package summary

import (
	"strings"
	"sync"
)

// Notes is an append-only buffer of summaries
type Notes struct {
	mu      sync.RWMutex
	entries []string
}

// NewNotes creates an empty notes buffer
func NewNotes() *Notes {
	return &Notes{}
}

// Append adds one summary
func (n *Notes) Append(summary string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, summary)
}

// Entries returns a copy of all summaries in order
func (n *Notes) Entries() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.entries...)
}

// Text joins all summaries separated by blank lines
func (n *Notes) Text() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return strings.Join(n.entries, "\n\n")
}

// Len returns the number of summaries
func (n *Notes) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entries)
}
