package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// orderRenderer records every callback in order.
type orderRenderer struct {
	calls   []string
	sources []models.Source
	texts   []string
	final   string
}

func (r *orderRenderer) OnMeta(meta models.MetaEvent) {
	r.calls = append(r.calls, "meta")
	r.sources = meta.Sources
}

func (r *orderRenderer) OnDelta(text string) {
	r.calls = append(r.calls, "delta")
	r.texts = append(r.texts, text)
}

func (r *orderRenderer) OnDone(text string) {
	r.calls = append(r.calls, "done")
	r.final = text
}

func streamServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.AssistantRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAsk_StreamRoundTrip(t *testing.T) {
	srv := streamServer(t,
		"event: meta\ndata: {\"model\":\"m\",\"sources\":[{\"file_id\":\"f1\",\"filename\":\"doc.md\",\"score\":0.9}]}\n\n",
		"event: delta\ndata: {\"delta\":\"Bon\"}\n\n",
		"event: delta\ndata: {\"delta\":\"jour\"}\n\n",
		"event: done\ndata: {\"ok\":true}\n\n",
	)

	r := &orderRenderer{}
	res, err := New(srv.Client(), srv.URL, "fr").Ask(t.Context(), "hi", nil, r)
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", res.Answer)
	assert.Equal(t, []string{"meta", "delta", "delta", "done"}, r.calls)
	assert.Equal(t, []models.Source{{FileID: "f1", Filename: "doc.md", Score: 0.9}}, r.sources)
	assert.Equal(t, []string{"Bon", "Bonjour"}, r.texts)
	assert.Equal(t, "Bonjour", r.final)
}

func TestAsk_DeltaRawTextFallback(t *testing.T) {
	srv := streamServer(t,
		"event: delta\ndata: plain text\n\n",
		"event: done\ndata: {\"ok\":true}\n\n",
	)

	res, err := New(srv.Client(), srv.URL, "fr").Ask(t.Context(), "hi", nil, &orderRenderer{})
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.Answer)
}

func TestAsk_ErrorEventKeepsPartial(t *testing.T) {
	srv := streamServer(t,
		"event: delta\ndata: {\"delta\":\"par\"}\n\n",
		"event: error\ndata: {\"error\":\"server_error\"}\n\n",
		"event: done\ndata: {\"ok\":false}\n\n",
	)

	r := &orderRenderer{}
	res, err := New(srv.Client(), srv.URL, "fr").Ask(t.Context(), "hi", nil, r)

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "server_error", se.Message)
	assert.Equal(t, "par", res.Answer)
	assert.NotContains(t, r.calls, "done")
}

func TestAsk_TruncatedStreamIsInterrupted(t *testing.T) {
	srv := streamServer(t, "event: delta\ndata: {\"delta\":\"par\"}\n\n")

	res, err := New(srv.Client(), srv.URL, "en").Ask(t.Context(), "hi", nil, &orderRenderer{})

	var ie *InterruptedError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, interruptedMessages["en"], ie.Message)
	assert.Equal(t, "par", res.Answer)
}

func TestAsk_BufferedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer":"Salut","sources":[{"file_id":"f1","filename":"a.md","score":0.5}],"debug":{"status":"incomplete","fallback":true}}`)
	}))
	defer srv.Close()

	r := &orderRenderer{}
	res, err := New(srv.Client(), srv.URL, "fr").Ask(t.Context(), "hi", nil, r)
	require.NoError(t, err)

	assert.Equal(t, "Salut", res.Answer)
	assert.Equal(t, []string{"meta", "done"}, r.calls)
	require.NotNil(t, res.Debug)
	assert.True(t, res.Debug.Fallback)
}

func TestAsk_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		fmt.Fprint(w, `{"error":"L’assistant met trop de temps à répondre."}`)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL, "fr").Ask(t.Context(), "hi", nil, &orderRenderer{})

	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusGatewayTimeout, ae.Status)
	assert.Equal(t, "L’assistant met trop de temps à répondre.", ae.Message)
}

func TestChat_PersistsTurns(t *testing.T) {
	var gotHistory []models.ChatTurn
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.AssistantRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotHistory = req.History
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"delta\":\"réponse\"}\n\nevent: done\ndata: {\"ok\":true}\n\n")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "conv.json")
	conv, err := OpenConversation(path)
	require.NoError(t, err)
	c := New(srv.Client(), srv.URL, "fr")

	_, err = c.Chat(t.Context(), conv, "  première  ", &orderRenderer{})
	require.NoError(t, err)
	_, err = c.Chat(t.Context(), conv, "deuxième", &orderRenderer{})
	require.NoError(t, err)

	assert.Equal(t, []models.ChatTurn{
		{Role: models.RoleUser, Content: "première"},
		{Role: models.RoleAssistant, Content: "réponse"},
	}, gotHistory, "history excludes the message being sent")

	reopened, err := OpenConversation(path)
	require.NoError(t, err)
	assert.Len(t, reopened.History(), 4)
}

func TestChat_KeepsUserTurnOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"Missing OPENAI_API_KEY"}`)
	}))
	defer srv.Close()

	conv, err := OpenConversation(filepath.Join(t.TempDir(), "conv.json"))
	require.NoError(t, err)

	_, err = New(srv.Client(), srv.URL, "fr").Chat(t.Context(), conv, "hi", &orderRenderer{})
	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}, conv.History())
}
