package recording

// Outcome tells how a recording ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is produced by every honoured End call. Content is the opaque voice
// token and is empty for cancelled recordings.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Content string  `json:"content,omitempty"`
	Seconds int     `json:"seconds"`
}

// Completed reports whether the recording produced content.
func (r Result) Completed() bool {
	return r.Outcome == OutcomeCompleted && r.Content != ""
}
