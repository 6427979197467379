package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// sentRequest is the part of a Responses create body the tests inspect.
type sentRequest struct {
	Model           string `json:"model"`
	Instructions    string `json:"instructions"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	Input           []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Temperature *float64        `json:"temperature"`
	Reasoning   json.RawMessage `json:"reasoning"`
	Store       bool            `json:"store"`
	Stream      bool            `json:"stream"`
}

func jsonServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResponsesLLM_Generate(t *testing.T) {
	var got sentRequest
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"id":"resp_1","status":"completed",
			"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":" Bonjour "}]}],
			"usage":{"input_tokens":10,"output_tokens":3,"total_tokens":13}}`)
	})

	llm := NewResponsesLLM(srv.Client(), srv.URL+"/", "sk-test", zap.NewNop())
	res, err := llm.Generate(t.Context(), models.CompletionRequest{
		Model:           "gpt-4.1-mini",
		Instructions:    "be brief",
		Context:         "ctx",
		History:         []models.ChatTurn{{Role: models.RoleAssistant, Content: "prev"}},
		Message:         "hi",
		MaxOutputTokens: 700,
		Temperature:     temperatureFor("gpt-4.1-mini"),
	})
	require.NoError(t, err)

	assert.Equal(t, "resp_1", res.ID)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, "Bonjour", res.Text)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 13, res.Usage.TotalTokens)

	assert.Equal(t, "gpt-4.1-mini", got.Model)
	assert.Equal(t, "be brief", got.Instructions)
	assert.Equal(t, 700, got.MaxOutputTokens)
	require.Len(t, got.Input, 3)
	assert.Equal(t, "developer", got.Input[0].Role)
	assert.Equal(t, "ctx", got.Input[0].Content)
	assert.Equal(t, models.RoleAssistant, got.Input[1].Role)
	assert.Equal(t, models.RoleUser, got.Input[2].Role)
	assert.Equal(t, "hi", got.Input[2].Content)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-6)
	assert.Empty(t, got.Reasoning)
	assert.True(t, got.Store)
	assert.False(t, got.Stream)
}

func TestResponsesLLM_ReasoningModelOmitsTemperature(t *testing.T) {
	var raw map[string]any
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, `{"id":"r","status":"incomplete","incomplete_details":{"reason":"max_output_tokens"}}`)
	})

	llm := NewResponsesLLM(srv.Client(), srv.URL, "k", zap.NewNop())
	res, err := llm.Generate(t.Context(), models.CompletionRequest{
		Model:       "o4-mini",
		Temperature: temperatureFor("o4-mini"),
	})
	require.NoError(t, err)

	assert.NotContains(t, raw, "temperature")
	assert.Contains(t, raw, "reasoning")
	assert.Equal(t, models.StatusIncomplete, res.Status)
	assert.Equal(t, "max_output_tokens", res.IncompleteReason)
	assert.Empty(t, res.Text)
}

func TestResponsesLLM_UpstreamError(t *testing.T) {
	var calls atomic.Int32
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests","param":null,"code":"rate_limit_exceeded"}}`)
	})

	llm := NewResponsesLLM(srv.Client(), srv.URL, "k", zap.NewNop())
	_, err := llm.Generate(t.Context(), models.CompletionRequest{Model: "gpt-4.1-mini"})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusTooManyRequests, ue.HTTPStatus())
	assert.Equal(t, "Rate limit reached", ue.Message)
	assert.Equal(t, int32(1), calls.Load(), "the client never retries on its own")
}

func TestResponsesLLM_Retrieve(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/responses/resp_9", r.URL.Path)
		fmt.Fprint(w, `{"id":"resp_9","status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"late"}]}]}`)
	})

	llm := NewResponsesLLM(srv.Client(), srv.URL, "k", zap.NewNop())
	res, err := llm.Retrieve(t.Context(), "resp_9")
	require.NoError(t, err)
	assert.Equal(t, "late", res.Text)
}

func TestResponsesLLM_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got sentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.True(t, got.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response.created\ndata: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_s\",\"status\":\"in_progress\"}}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"Bon\"}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"jour\"}\n\n")
		fmt.Fprint(w, "event: response.completed\ndata: {\"type\":\"response.completed\",\"response\":{\"id\":\"resp_s\",\"status\":\"completed\"}}\n\n")
	}))
	defer srv.Close()

	var deltas []string
	llm := NewResponsesLLM(srv.Client(), srv.URL, "k", zap.NewNop())
	res, err := llm.Stream(t.Context(), models.CompletionRequest{Model: "gpt-4.1-mini"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Bon", "jour"}, deltas)
	assert.Equal(t, "Bonjour", res.Text)
	assert.Equal(t, "resp_s", res.ID)
	assert.Equal(t, models.StatusCompleted, res.Status)
}

func TestResponsesLLM_StreamFailedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.failed\",\"response\":{\"status\":\"failed\",\"error\":{\"message\":\"server_error\"}}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"never\"}\n\n")
	}))
	defer srv.Close()

	var deltas []string
	llm := NewResponsesLLM(srv.Client(), srv.URL, "k", zap.NewNop())
	_, err := llm.Stream(t.Context(), models.CompletionRequest{Model: "gpt-4.1-mini"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "server_error", ue.Message)
	assert.Equal(t, []string{"a"}, deltas)
}

func TestDecodeResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		in   string
		want models.CompletionStatus
	}{
		{"completed", models.StatusCompleted},
		{"incomplete", models.StatusIncomplete},
		{"failed", models.StatusFailed},
		{"cancelled", models.StatusFailed},
		{"in_progress", models.StatusUnknown},
		{"", models.StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decodeResponse(&responses.Response{Status: responses.ResponseStatus(tt.in)}).Status, tt.in)
	}
}
