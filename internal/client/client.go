// Package client consumes the assistant endpoint: it posts a question, reads
// the event stream (or a buffered JSON answer) and renders the text as it
// grows.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
	"github.com/entrepreneur-whisperer/site/server/internal/sse"
)

// Renderer receives the answer while it is produced.
type Renderer interface {
	// OnMeta is called once, before any delta, with the cited sources.
	OnMeta(meta models.MetaEvent)
	// OnDelta is called with the full text received so far.
	OnDelta(text string)
	// OnDone is called with the final text.
	OnDone(text string)
}

// Result is what one Ask produced. On error it still holds any partial text.
type Result struct {
	Answer  string
	Sources []models.Source
	Debug   *models.Debug
}

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("assistant %d: %s", e.Status, e.Message) }

// StreamError is an error event sent by the server mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return e.Message }

// InterruptedError means the stream broke before done. Message is localized.
type InterruptedError struct {
	Message string
	Err     error
}

func (e *InterruptedError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *InterruptedError) Unwrap() error { return e.Err }

var interruptedMessages = map[string]string{
	"fr": "Connexion interrompue. La réponse partielle est conservée, réessaie dans quelques secondes.",
	"en": "Connection interrupted. The partial answer was kept, please retry in a few seconds.",
}

// Client talks to one assistant endpoint.
type Client struct {
	http     *http.Client
	endpoint string
	lang     string
}

// New returns a client for endpoint, e.g. http://localhost:8080/api/assistant.
// lang is "fr" or "en".
func New(httpClient *http.Client, endpoint, lang string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if _, ok := interruptedMessages[lang]; !ok {
		lang = "fr"
	}
	return &Client{http: httpClient, endpoint: endpoint, lang: lang}
}

// Ask sends message with history and renders the answer through r.
func (c *Client) Ask(ctx context.Context, message string, history []models.ChatTurn, r Renderer) (Result, error) {
	body, err := json.Marshal(models.AssistantRequest{Message: message, History: history, Stream: true, Lang: c.lang})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set("Accept-Language", c.lang)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, c.interrupted(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, apiError(resp)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.readStream(resp.Body, r)
	}
	return c.readBuffered(resp.Body, r)
}

func (c *Client) readStream(body io.Reader, r Renderer) (Result, error) {
	var (
		res  Result
		text strings.Builder
		rd   = sse.NewReader(body)
	)
	for {
		ev, err := rd.Next()
		if errors.Is(err, io.EOF) {
			res.Answer = text.String()
			return res, c.interrupted(io.ErrUnexpectedEOF)
		}
		if err != nil {
			res.Answer = text.String()
			return res, c.interrupted(err)
		}

		switch ev.Name {
		case models.EventMeta:
			var meta models.MetaEvent
			if err := json.Unmarshal([]byte(ev.Data), &meta); err != nil {
				res.Answer = text.String()
				return res, c.interrupted(fmt.Errorf("decode meta: %w", err))
			}
			res.Sources, res.Debug = meta.Sources, meta.Debug
			r.OnMeta(meta)
		case models.EventDelta:
			var d models.DeltaEvent
			if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
				d.Delta = ev.Data
			}
			text.WriteString(d.Delta)
			r.OnDelta(text.String())
		case models.EventError:
			var e models.ErrorEvent
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil || e.Error == "" {
				e.Error = ev.Data
			}
			res.Answer = text.String()
			return res, &StreamError{Message: e.Error}
		case models.EventDone:
			res.Answer = text.String()
			r.OnDone(res.Answer)
			return res, nil
		}
	}
}

func (c *Client) readBuffered(body io.Reader, r Renderer) (Result, error) {
	var out models.AssistantResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return Result{}, c.interrupted(fmt.Errorf("decode answer: %w", err))
	}
	r.OnMeta(models.MetaEvent{Sources: out.Sources, Debug: out.Debug})
	r.OnDone(out.Answer)
	return Result{Answer: out.Answer, Sources: out.Sources, Debug: out.Debug}, nil
}

func (c *Client) interrupted(err error) error {
	return &InterruptedError{Message: interruptedMessages[c.lang], Err: err}
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body models.ErrorResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// Chat runs one turn against conv: the user turn is stored before sending,
// the assistant turn after the answer ends, even when it is partial.
func (c *Client) Chat(ctx context.Context, conv *Conversation, message string, r Renderer) (Result, error) {
	message = strings.TrimSpace(message)
	history := conv.History()
	if err := conv.Append(models.RoleUser, message); err != nil {
		return Result{}, err
	}

	res, err := c.Ask(ctx, message, history, r)
	if strings.TrimSpace(res.Answer) != "" {
		if serr := conv.Append(models.RoleAssistant, res.Answer); serr != nil && err == nil {
			err = serr
		}
	}
	return res, err
}
