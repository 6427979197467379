package service

import (
	"context"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// ResponsesLLM implements Generator and Resumer on top of the OpenAI
// Responses API.
type ResponsesLLM struct {
	responses responses.ResponseService
	log       *zap.Logger
}

// NewResponsesLLM creates a Responses API client.
func NewResponsesLLM(httpClient *http.Client, baseURL, apiKey string, log *zap.Logger) *ResponsesLLM {
	client := oai.NewClient(sdkOptions(httpClient, baseURL, apiKey)...)
	return &ResponsesLLM{
		responses: client.Responses,
		log:       log.With(zap.String("component", "responses")),
	}
}

func inputMessage(role responses.EasyInputMessageRole, content string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role:    role,
			Content: responses.EasyInputMessageContentUnionParam{OfString: oai.String(content)},
		},
	}
}

func buildParams(req models.CompletionRequest) responses.ResponseNewParams {
	input := make(responses.ResponseInputParam, 0, len(req.History)+2)
	input = append(input, inputMessage(responses.EasyInputMessageRoleDeveloper, req.Context))
	for _, h := range req.History {
		role := responses.EasyInputMessageRoleUser
		if h.Role == models.RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		input = append(input, inputMessage(role, h.Content))
	}
	input = append(input, inputMessage(responses.EasyInputMessageRoleUser, req.Message))

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		Store: oai.Bool(true),
	}
	if req.Instructions != "" {
		params.Instructions = oai.String(req.Instructions)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = oai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature != nil {
		params.Temperature = oai.Float(float64(*req.Temperature))
	}
	if IsReasoningModel(req.Model) {
		params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffortLow}
	}
	return params
}

// Generate creates a response and waits for the buffered result.
func (l *ResponsesLLM) Generate(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	out, err := l.responses.New(ctx, buildParams(req))
	if err != nil {
		return models.CompletionResult{}, classify(ctx, "generation", sdkError(err))
	}
	res := decodeResponse(out)
	l.log.Debug("response created", zap.String("id", res.ID), zap.String("status", string(res.Status)))
	return res, nil
}

// Retrieve fetches a stored response by id.
func (l *ResponsesLLM) Retrieve(ctx context.Context, id string) (models.CompletionResult, error) {
	out, err := l.responses.Get(ctx, id, responses.ResponseGetParams{})
	if err != nil {
		return models.CompletionResult{}, classify(ctx, "retry", sdkError(err))
	}
	return decodeResponse(out), nil
}

// Stream creates a streamed response and relays output text deltas.
func (l *ResponsesLLM) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(string) error) (models.CompletionResult, error) {
	stream := l.responses.NewStreaming(ctx, buildParams(req))
	defer stream.Close()

	var (
		text   strings.Builder
		result = models.CompletionResult{Status: models.StatusUnknown}
	)
	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case "response.output_text.delta":
			delta := ev.AsResponseOutputTextDelta().Delta
			if delta == "" {
				continue
			}
			text.WriteString(delta)
			if err := onDelta(delta); err != nil {
				return result, err
			}
		case "response.created":
			result.ID = ev.AsResponseCreated().Response.ID
		case "response.completed":
			resp := ev.AsResponseCompleted().Response
			result = decodeResponse(&resp)
		case "response.incomplete":
			resp := ev.AsResponseIncomplete().Response
			result = decodeResponse(&resp)
		case "response.failed":
			msg := ev.AsResponseFailed().Response.Error.Message
			if msg == "" {
				msg = "response failed"
			}
			return result, &UpstreamError{Message: msg}
		case "error":
			msg := ev.AsError().Message
			if msg == "" {
				msg = "stream error"
			}
			return result, &UpstreamError{Message: msg}
		}
	}
	if err := stream.Err(); err != nil {
		return result, classify(ctx, "generation", sdkError(err))
	}

	if result.Text == "" {
		result.Text = text.String()
	}
	return result, nil
}

func decodeResponse(out *responses.Response) models.CompletionResult {
	res := models.CompletionResult{ID: out.ID}
	switch string(out.Status) {
	case "completed":
		res.Status = models.StatusCompleted
	case "incomplete":
		res.Status = models.StatusIncomplete
	case "failed", "cancelled":
		res.Status = models.StatusFailed
	default:
		res.Status = models.StatusUnknown
	}
	res.IncompleteReason = string(out.IncompleteDetails.Reason)
	res.ErrorMessage = out.Error.Message
	if u := out.Usage; u.TotalTokens > 0 {
		res.Usage = &models.Usage{
			InputTokens:  int(u.InputTokens),
			OutputTokens: int(u.OutputTokens),
			TotalTokens:  int(u.TotalTokens),
		}
	}

	var sb strings.Builder
	for _, item := range out.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.AsMessage().Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	res.Text = strings.TrimSpace(sb.String())
	return res
}
