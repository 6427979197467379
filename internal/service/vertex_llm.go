package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// VertexLLM implements Generator with Gemini models on Vertex AI.
type VertexLLM struct {
	client *genai.Client
	log    *zap.Logger
}

// NewVertexLLM creates a Vertex AI client for project and location.
// credentialsFile may be empty to use application default credentials.
func NewVertexLLM(ctx context.Context, project, location, credentialsFile string, log *zap.Logger) (*VertexLLM, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := genai.NewClient(ctx, project, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	return &VertexLLM{client: client, log: log.With(zap.String("component", "vertex"))}, nil
}

// chat prepares a chat session carrying the instructions, the assembled
// context and the prior turns.
func (l *VertexLLM) chat(req models.CompletionRequest) *genai.ChatSession {
	model := l.client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.Instructions), genai.Text(req.Context)},
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}

	cs := model.StartChat()
	for _, h := range req.History {
		role := "user"
		if h.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(h.Content)}})
	}
	return cs
}

// Generate sends the user message and waits for the full answer.
func (l *VertexLLM) Generate(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	resp, err := l.chat(req).SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return models.CompletionResult{}, classify(ctx, "generation", err)
	}

	res := models.CompletionResult{Status: models.StatusUnknown, Usage: vertexUsage(resp.UsageMetadata)}
	if len(resp.Candidates) > 0 {
		c := resp.Candidates[0]
		res.Text = strings.TrimSpace(candidateText(c))
		res.Status, res.IncompleteReason = vertexStatus(c.FinishReason)
	}
	l.log.Debug("vertex completion", zap.String("status", string(res.Status)))
	return res, nil
}

// Stream relays text parts as they arrive.
func (l *VertexLLM) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(string) error) (models.CompletionResult, error) {
	it := l.chat(req).SendMessageStream(ctx, genai.Text(req.Message))

	var (
		text strings.Builder
		res  = models.CompletionResult{Status: models.StatusUnknown}
	)
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return res, classify(ctx, "generation", err)
		}
		if u := vertexUsage(resp.UsageMetadata); u != nil {
			res.Usage = u
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		c := resp.Candidates[0]
		if c.FinishReason != genai.FinishReasonUnspecified {
			res.Status, res.IncompleteReason = vertexStatus(c.FinishReason)
		}
		if d := candidateText(c); d != "" {
			text.WriteString(d)
			if err := onDelta(d); err != nil {
				return res, err
			}
		}
	}
	res.Text = text.String()
	return res, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func vertexStatus(r genai.FinishReason) (models.CompletionStatus, string) {
	switch r {
	case genai.FinishReasonStop:
		return models.StatusCompleted, ""
	case genai.FinishReasonMaxTokens:
		return models.StatusIncomplete, "max_output_tokens"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return models.StatusIncomplete, "content_filter"
	case genai.FinishReasonUnspecified:
		return models.StatusUnknown, ""
	}
	return models.StatusCompleted, ""
}

func vertexUsage(u *genai.UsageMetadata) *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		InputTokens:  int(u.PromptTokenCount),
		OutputTokens: int(u.CandidatesTokenCount),
		TotalTokens:  int(u.TotalTokenCount),
	}
}

// Close closes the Vertex AI client
func (l *VertexLLM) Close() error {
	return l.client.Close()
}
