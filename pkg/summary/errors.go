package summary

// SummarizationError reports a failed summarization call. It is logged and
// the cursor stays put so the same text is retried on the next tick.
type SummarizationError struct {
	Cursor int
	Err    error
}

func (e *SummarizationError) Error() string {
	return "summarization failed: " + e.Err.Error()
}

func (e *SummarizationError) Unwrap() error {
	return e.Err
}
