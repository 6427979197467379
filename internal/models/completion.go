package models

import "time"

// CompletionStatus is the decoded terminal state of a generation call.
type CompletionStatus string

const (
	StatusCompleted  CompletionStatus = "completed"
	StatusIncomplete CompletionStatus = "incomplete"
	StatusFailed     CompletionStatus = "failed"
	StatusUnknown    CompletionStatus = "unknown"
)

// Terminal reports whether another look at the same result could change it.
func (s CompletionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CompletionRequest is everything a generator needs for one user turn.
type CompletionRequest struct {
	Model           string
	Instructions    string
	Context         string // assembled knowledge-base excerpts
	History         []ChatTurn
	Message         string
	MaxOutputTokens int
	Temperature     *float32 // nil for reasoning-style models
	Deadline        time.Duration
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CompletionResult is the provider-independent outcome of a generation call.
type CompletionResult struct {
	ID               string // provider id, used to resume when supported
	Status           CompletionStatus
	Text             string
	IncompleteReason string
	ErrorMessage     string
	Usage            *Usage
}
