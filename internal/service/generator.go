package service

import (
	"context"
	"regexp"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// Generator produces an answer from an assembled request.
type Generator interface {
	// Generate runs a buffered completion.
	Generate(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error)

	// Stream runs a streamed completion, calling onDelta for each text
	// fragment in order. A non-nil error from onDelta aborts the stream.
	Stream(ctx context.Context, req models.CompletionRequest, onDelta func(string) error) (models.CompletionResult, error)
}

// Resumer is implemented by generators whose results can be fetched again by
// id after the initial call returned.
type Resumer interface {
	Retrieve(ctx context.Context, id string) (models.CompletionResult, error)
}

var reasoningModel = regexp.MustCompile(`^(o\d|gpt-5)`)

// IsReasoningModel reports whether model belongs to a reasoning family that
// spends output tokens on hidden reasoning and rejects sampling parameters.
func IsReasoningModel(model string) bool {
	return reasoningModel.MatchString(model)
}

// Output token defaults.
const (
	defaultMaxOutputTokens   = 700
	reasoningMaxOutputTokens = 1600
	defaultTemperature       = float32(0.3)
)

// MaxOutputTokensFor returns override when set, else a default by model family.
func MaxOutputTokensFor(model string, override int) int {
	if override > 0 {
		return override
	}
	if IsReasoningModel(model) {
		return reasoningMaxOutputTokens
	}
	return defaultMaxOutputTokens
}

func temperatureFor(model string) *float32 {
	if IsReasoningModel(model) {
		return nil
	}
	t := defaultTemperature
	return &t
}
