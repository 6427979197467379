package models

// Event names of the assistant stream.
const (
	EventMeta  = "meta"
	EventDelta = "delta"
	EventError = "error"
	EventDone  = "done"
)

// MetaEvent opens the stream, before any content.
type MetaEvent struct {
	Model           string   `json:"model"`
	DeadlineMS      int64    `json:"deadline_ms"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	Sources         []Source `json:"sources"`
	Debug           *Debug   `json:"debug,omitempty"`
}

// DeltaEvent carries one text fragment.
type DeltaEvent struct {
	Delta string `json:"delta"`
}

// ErrorEvent reports a failure after headers were sent.
type ErrorEvent struct {
	Error string `json:"error"`
}

// DoneEvent closes the stream.
type DoneEvent struct {
	OK bool `json:"ok"`
}
