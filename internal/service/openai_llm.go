package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// NewOpenAIClient builds a go-openai client for apiKey against baseURL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// ChatLLM implements Generator with the Chat Completions API. It cannot
// resume a finished call, so failures go straight to the fallback.
type ChatLLM struct {
	client *openai.Client
	log    *zap.Logger
}

// NewChatLLM wraps client.
func NewChatLLM(client *openai.Client, log *zap.Logger) *ChatLLM {
	return &ChatLLM{client: client, log: log.With(zap.String("component", "chat"))}
}

func chatRequest(req models.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+3)
	msgs = append(msgs,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Context},
	)
	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if h.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})

	out := openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            msgs,
		MaxCompletionTokens: req.MaxOutputTokens,
		Stream:              stream,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// Generate runs one buffered chat completion.
func (l *ChatLLM) Generate(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	resp, err := l.client.CreateChatCompletion(ctx, chatRequest(req, false))
	if err != nil {
		return models.CompletionResult{}, classify(ctx, "generation", chatError(err))
	}

	res := models.CompletionResult{
		ID:     resp.ID,
		Status: models.StatusUnknown,
		Usage: &models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		res.Text = strings.TrimSpace(choice.Message.Content)
		res.Status, res.IncompleteReason = finishStatus(choice.FinishReason)
	}
	l.log.Debug("chat completion", zap.String("id", res.ID), zap.String("status", string(res.Status)))
	return res, nil
}

// Stream relays content deltas of a streamed chat completion.
func (l *ChatLLM) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(string) error) (models.CompletionResult, error) {
	stream, err := l.client.CreateChatCompletionStream(ctx, chatRequest(req, true))
	if err != nil {
		return models.CompletionResult{}, classify(ctx, "generation", chatError(err))
	}
	defer stream.Close()

	var (
		text strings.Builder
		res  = models.CompletionResult{Status: models.StatusUnknown}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, classify(ctx, "generation", chatError(err))
		}
		res.ID = chunk.ID
		if chunk.Usage != nil {
			res.Usage = &models.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			res.Status, res.IncompleteReason = finishStatus(choice.FinishReason)
		}
		if d := choice.Delta.Content; d != "" {
			text.WriteString(d)
			if err := onDelta(d); err != nil {
				return res, err
			}
		}
	}
	res.Text = text.String()
	return res, nil
}

func finishStatus(reason openai.FinishReason) (models.CompletionStatus, string) {
	switch reason {
	case openai.FinishReasonStop:
		return models.StatusCompleted, ""
	case openai.FinishReasonLength:
		return models.StatusIncomplete, "max_output_tokens"
	case openai.FinishReasonContentFilter:
		return models.StatusIncomplete, "content_filter"
	case "":
		return models.StatusUnknown, ""
	}
	return models.StatusCompleted, ""
}

// chatError lifts go-openai errors into UpstreamError so their status
// survives classification.
func chatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && !isTimeout(err) {
		return &UpstreamError{Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}

// OpenAIFiles resolves vector store file ids to their file names through the
// Files API.
type OpenAIFiles struct {
	client *openai.Client
}

// NewOpenAIFiles wraps client.
func NewOpenAIFiles(client *openai.Client) *OpenAIFiles {
	return &OpenAIFiles{client: client}
}

// FileName implements FileNamer.
func (f *OpenAIFiles) FileName(ctx context.Context, fileID string) (string, error) {
	file, err := f.client.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return file.FileName, nil
}
