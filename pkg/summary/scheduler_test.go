package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/silviot/live_tutor_go/pkg/transcript"
)

type recordingSummarizer struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (r *recordingSummarizer) Summarize(_ context.Context, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, text)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func (r *recordingSummarizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type resultRecorder struct {
	results chan string
}

func (r *resultRecorder) SummaryResult(result string) {
	select {
	case r.results <- result:
	default:
	}
}

func longTurn(speaker transcript.Speaker, n int) transcript.Turn {
	return transcript.Turn{Speaker: speaker, Text: strings.Repeat("a", n)}
}

func TestTickBelowThresholdSkips(t *testing.T) {
	log := transcript.NewLog()
	log.Append(transcript.Turn{Speaker: transcript.SpeakerUser, Text: "short"})
	sum := &recordingSummarizer{reply: "notes"}

	s := NewScheduler(log, sum, nil, Config{})
	appended, err := s.Tick(context.Background())
	if err != nil || appended {
		t.Fatalf("expected skip, got appended=%v err=%v", appended, err)
	}
	if sum.callCount() != 0 {
		t.Errorf("summarizer called %d times", sum.callCount())
	}
	if s.Cursor() != 0 {
		t.Errorf("cursor moved to %d", s.Cursor())
	}
}

func TestTickSummarizesOnlyNewText(t *testing.T) {
	log := transcript.NewLog()
	sum := &recordingSummarizer{reply: "  - point one  "}
	notes := NewNotes()
	s := NewScheduler(log, sum, notes, Config{MinChars: 100})

	log.Append(longTurn(transcript.SpeakerAgent, 150))
	first := log.Text()

	appended, err := s.Tick(context.Background())
	if err != nil || !appended {
		t.Fatalf("first tick: appended=%v err=%v", appended, err)
	}
	if sum.calls[0] != first {
		t.Errorf("first call text mismatch")
	}
	if s.Cursor() != len(first) {
		t.Errorf("cursor: got %d, want %d", s.Cursor(), len(first))
	}
	if notes.Entries()[0] != "- point one" {
		t.Errorf("notes not trimmed: %q", notes.Entries()[0])
	}

	// A little new text stays below the threshold
	log.Append(transcript.Turn{Speaker: transcript.SpeakerUser, Text: "ok"})
	if appended, _ := s.Tick(context.Background()); appended {
		t.Error("expected skip for short delta")
	}

	log.Append(longTurn(transcript.SpeakerAgent, 120))
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("third tick failed: %v", err)
	}
	if len(sum.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(sum.calls))
	}
	if sum.calls[1] != log.Text()[len(first):] {
		t.Errorf("second call should only contain new text, got %q", sum.calls[1])
	}
	if s.Cursor() != log.Len() {
		t.Errorf("cursor: got %d, want %d", s.Cursor(), log.Len())
	}
	if notes.Len() != 2 {
		t.Errorf("notes: got %d, want 2", notes.Len())
	}
}

func TestTickFailureKeepsCursor(t *testing.T) {
	log := transcript.NewLog()
	log.Append(longTurn(transcript.SpeakerAgent, 200))
	sum := &recordingSummarizer{err: errors.New("quota exceeded")}
	s := NewScheduler(log, sum, nil, Config{})

	_, err := s.Tick(context.Background())
	var sumErr *SummarizationError
	if !errors.As(err, &sumErr) {
		t.Fatalf("expected *SummarizationError, got %v", err)
	}
	if s.Cursor() != 0 {
		t.Errorf("cursor moved on failure: %d", s.Cursor())
	}
	if s.Notes().Len() != 0 {
		t.Errorf("notes appended on failure")
	}

	// The same text is retried on the next tick
	sum.err = nil
	sum.reply = "notes"
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if sum.calls[0] != sum.calls[1] {
		t.Error("retry did not resend the same text")
	}
	if s.Cursor() != log.Len() {
		t.Errorf("cursor: got %d, want %d", s.Cursor(), log.Len())
	}
}

func TestMinCharsCountsCharacters(t *testing.T) {
	log := transcript.NewLog()
	// 60 two-byte characters plus the "Agent: " prefix stays under 100 characters
	log.Append(transcript.Turn{Speaker: transcript.SpeakerAgent, Text: strings.Repeat("é", 60)})
	sum := &recordingSummarizer{reply: "notes"}
	s := NewScheduler(log, sum, nil, Config{MinChars: 100})

	if log.Len() <= 100 {
		t.Fatalf("test text should exceed 100 bytes, got %d", log.Len())
	}
	s.Tick(context.Background())
	if sum.callCount() != 0 {
		t.Error("threshold should count characters, not bytes")
	}
}

func TestTimerDrivenTicks(t *testing.T) {
	log := transcript.NewLog()
	log.Append(longTurn(transcript.SpeakerAgent, 200))
	sum := &recordingSummarizer{reply: "notes"}

	delivered := make(chan string, 1)
	s := NewScheduler(log, sum, nil, Config{
		Interval: 10 * time.Millisecond,
		OnNotes:  func(summary string) { delivered <- summary },
	})
	s.Start()
	defer s.Stop()

	select {
	case got := <-delivered:
		if got != "notes" {
			t.Errorf("delivered %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notes delivered")
	}
	if !s.Running() {
		t.Error("scheduler should still be running")
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	log := transcript.NewLog()
	var active, maxActive, calls atomic.Int32

	sum := SummarizerFunc(func(ctx context.Context, text string) (string, error) {
		n := active.Add(1)
		defer active.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		// Keep producing new text so every tick calls the summarizer
		log.Append(longTurn(transcript.SpeakerAgent, 150))
		return "notes", nil
	})

	log.Append(longTurn(transcript.SpeakerAgent, 150))
	s := NewScheduler(log, sum, nil, Config{Interval: time.Millisecond})
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 calls, got %d", calls.Load())
	}
	if maxActive.Load() != 1 {
		t.Errorf("ticks overlapped: max concurrency %d", maxActive.Load())
	}
}

func TestManualTickWhileInFlight(t *testing.T) {
	log := transcript.NewLog()
	log.Append(longTurn(transcript.SpeakerAgent, 150))
	first := log.Text()

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	sum := SummarizerFunc(func(ctx context.Context, text string) (string, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return "notes", nil
	})

	rec := &resultRecorder{results: make(chan string, 8)}
	s := NewScheduler(log, sum, nil, Config{MinChars: 100, Recorder: rec})

	done := make(chan bool)
	go func() {
		appended, _ := s.Tick(context.Background())
		done <- appended
	}()
	<-started

	log.Append(longTurn(transcript.SpeakerUser, 150))
	appended, err := s.Tick(context.Background())
	if err != nil || appended {
		t.Fatalf("second tick: appended=%v err=%v, want busy skip", appended, err)
	}
	if got := <-rec.results; got != "busy" {
		t.Errorf("result: got %q, want busy", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("summarizer called %d times while a call was in flight", calls.Load())
	}

	close(release)
	if !<-done {
		t.Fatal("first tick should append notes")
	}
	if s.Cursor() != len(first) {
		t.Fatalf("cursor = %d, want %d", s.Cursor(), len(first))
	}

	appended, err = s.Tick(context.Background())
	if err != nil || !appended {
		t.Fatalf("third tick: appended=%v err=%v", appended, err)
	}
	if s.Cursor() != len(log.Text()) {
		t.Errorf("cursor = %d, want %d", s.Cursor(), len(log.Text()))
	}
	if s.Notes().Len() != 2 || calls.Load() != 2 {
		t.Errorf("notes=%d calls=%d, want 2 and 2", s.Notes().Len(), calls.Load())
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	log := transcript.NewLog()
	log.Append(longTurn(transcript.SpeakerAgent, 200))

	started := make(chan struct{})
	release := make(chan struct{})
	sum := SummarizerFunc(func(ctx context.Context, text string) (string, error) {
		close(started)
		<-release
		// Result ignores cancellation and still arrives
		return "late notes", nil
	})

	rec := &resultRecorder{results: make(chan string, 4)}
	var delivered atomic.Int32
	s := NewScheduler(log, sum, nil, Config{
		Interval: time.Millisecond,
		Recorder: rec,
		OnNotes:  func(string) { delivered.Add(1) },
	})
	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("summarizer never called")
	}
	s.Stop()
	close(release)

	select {
	case result := <-rec.results:
		if result != "discarded" {
			t.Errorf("result: got %q, want discarded", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight tick did not finish")
	}

	if s.Notes().Len() != 0 || s.Cursor() != 0 || delivered.Load() != 0 {
		t.Errorf("late result leaked: notes=%d cursor=%d delivered=%d",
			s.Notes().Len(), s.Cursor(), delivered.Load())
	}
	if s.Running() {
		t.Error("scheduler should be stopped")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(transcript.NewLog(), &recordingSummarizer{}, nil, Config{})
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("expected stopped scheduler")
	}
}
