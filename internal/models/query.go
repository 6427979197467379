package models

// Roles accepted in a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one message of a conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantRequest is the payload for POST /api/assistant.
type AssistantRequest struct {
	Message string     `json:"message"           validate:"required,max=4000"` // user’s natural‑language question
	History []ChatTurn `json:"history,omitempty"`                              // prior turns, oldest first
	Stream  bool       `json:"stream,omitempty"`                               // ask for text/event-stream
	Lang    string     `json:"lang,omitempty"`                                 // "fr" | "en"; optional
}

// AssistantResponse is the buffered (non-streaming) answer.
type AssistantResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Debug   *Debug   `json:"debug,omitempty"`
}

// Debug is attached only when the answer is degraded: fallback used or the
// generation did not complete.
type Debug struct {
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	IncompleteReason string `json:"incomplete_reason,omitempty"`
	Fallback         bool   `json:"fallback"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
