package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
	"github.com/entrepreneur-whisperer/site/server/internal/telemetry"
)

// Response modes, also used as metric and log labels.
const (
	ModeBuffered = "buffered"
	ModeStream   = "stream"
)

// Citation caps per mode.
const (
	bufferedSources = 4
	streamSources   = 2
)

const defaultDeadline = 55 * time.Second

// EventSink receives the events of a streamed answer. *sse.Writer satisfies it.
type EventSink interface {
	Send(name string, v any) error
}

// Options configures an AssistantService.
type Options struct {
	Model           string
	Deadline        time.Duration
	MaxOutputTokens int      // 0 derives the limit from Model
	Missing         []string // configuration keys absent at start-up

	Metrics *telemetry.Metrics // optional
	Tracer  trace.Tracer       // optional, defaults to the global provider
}

// AssistantService runs the retrieval-augmented answer pipeline.
type AssistantService struct {
	opts      Options
	retriever Retriever
	generator Generator
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	log       *zap.Logger
	now       func() time.Time
}

// NewAssistantService wires the pipeline.
func NewAssistantService(opts Options, retriever Retriever, generator Generator, log *zap.Logger) *AssistantService {
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.TracerName)
	}
	return &AssistantService{
		opts:      opts,
		retriever: retriever,
		generator: generator,
		metrics:   opts.Metrics,
		tracer:    tracer,
		log:       log.With(zap.String("component", "assistant")),
		now:       time.Now,
	}
}

// Model is the generation model answers are requested from.
func (s *AssistantService) Model() string { return s.opts.Model }

// Turn is a validated request whose context has been retrieved, ready for
// generation.
type Turn struct {
	ID       string
	Lang     Lang
	Mode     string
	Question string
	Passages []models.Passage
	Request  models.CompletionRequest

	budget    *Budget
	retrieval time.Duration
}

// Sources are the citations returned with the answer.
func (t *Turn) Sources() []models.Source { return models.SourcesOf(t.Passages) }

// Deadline is the total request budget.
func (t *Turn) Deadline() time.Duration { return t.budget.Deadline() }

// Prepare validates the request, starts the deadline clock and retrieves
// the context. Every failure here happens before any response byte is sent.
func (s *AssistantService) Prepare(ctx context.Context, id string, lang Lang, mode string, req models.AssistantRequest) (*Turn, error) {
	budget := newBudgetAt(s.now, s.opts.Deadline)
	turn := &Turn{ID: id, Lang: lang, Mode: mode, budget: budget}

	if len(s.opts.Missing) > 0 {
		err := &ConfigError{Missing: s.opts.Missing[0]}
		s.finish(turn, models.CompletionResult{}, 0, false, err)
		return nil, err
	}
	turn.Question = strings.TrimSpace(req.Message)
	if turn.Question == "" {
		err := &ValidationError{Message: MissingMessage(lang)}
		s.finish(turn, models.CompletionResult{}, 0, false, err)
		return nil, err
	}

	passages, err := s.retrieve(ctx, turn)
	if err != nil {
		s.finish(turn, models.CompletionResult{}, 0, false, err)
		return nil, err
	}
	limit := bufferedSources
	if mode == ModeStream {
		limit = streamSources
	}
	turn.Passages = DedupeBySource(passages, limit)

	turn.Request = models.CompletionRequest{
		Model:           s.opts.Model,
		Instructions:    Instructions(lang),
		Context:         AssembleContext(lang, turn.Passages),
		History:         TrimHistory(req.History),
		Message:         turn.Question,
		MaxOutputTokens: MaxOutputTokensFor(s.opts.Model, s.opts.MaxOutputTokens),
		Temperature:     temperatureFor(s.opts.Model),
		Deadline:        budget.Deadline(),
	}
	return turn, nil
}

func (s *AssistantService) retrieve(ctx context.Context, turn *Turn) ([]models.Passage, error) {
	d, err := turn.budget.Retrieval()
	if err != nil {
		return nil, err
	}
	bctx, cancel := turn.budget.Context(ctx)
	defer cancel()
	rctx, cancelStage := context.WithTimeout(bctx, d)
	defer cancelStage()

	rctx, span := s.tracer.Start(rctx, "assistant.retrieve", trace.WithAttributes(
		attribute.String("request.id", turn.ID),
		attribute.Int64("budget_ms", d.Milliseconds()),
	))
	defer span.End()

	start := s.now()
	passages, err := s.retriever.Search(rctx, turn.Question, DefaultMaxResults, DefaultScoreThreshold)
	turn.retrieval = s.now().Sub(start)
	s.metrics.Stage("retrieval", turn.retrieval)
	if err != nil {
		err = classify(rctx, "retrieval", err)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits", len(passages)))
	return passages, nil
}

// Answer runs a buffered generation, with at most one resume-by-id retry,
// and falls back to the excerpts when no text came back.
func (s *AssistantService) Answer(ctx context.Context, turn *Turn) (models.AssistantResponse, error) {
	resumer, resumable := s.generator.(Resumer)

	start := s.now()
	res, err := s.generate(ctx, turn, resumable)
	if err != nil {
		s.finish(turn, res, s.now().Sub(start), false, err)
		return models.AssistantResponse{}, err
	}

	if res.Text == "" && resumable && res.ID != "" && !res.Status.Terminal() {
		res = s.retry(ctx, turn, resumer, res)
	}
	genDur := s.now().Sub(start)

	out := models.AssistantResponse{Answer: res.Text, Sources: turn.Sources()}
	fallback := res.Text == ""
	if fallback {
		out.Answer = BuildFallbackAnswer(turn.Lang, turn.Question, turn.Passages)
	}
	if fallback || res.Status != models.StatusCompleted {
		out.Debug = &models.Debug{
			Status:           string(res.Status),
			Error:            res.ErrorMessage,
			IncompleteReason: res.IncompleteReason,
			Fallback:         fallback,
		}
	}
	s.finish(turn, res, genDur, fallback, nil)
	return out, nil
}

func (s *AssistantService) generate(ctx context.Context, turn *Turn, resumable bool) (models.CompletionResult, error) {
	d, err := turn.budget.Generation(resumable)
	if err != nil {
		return models.CompletionResult{}, err
	}
	bctx, cancel := turn.budget.Context(ctx)
	defer cancel()
	gctx, cancelStage := context.WithTimeout(bctx, d)
	defer cancelStage()

	gctx, span := s.tracer.Start(gctx, "assistant.generate", trace.WithAttributes(
		attribute.String("request.id", turn.ID),
		attribute.String("model", turn.Request.Model),
		attribute.Int64("budget_ms", d.Milliseconds()),
	))
	defer span.End()

	start := s.now()
	res, err := s.generator.Generate(gctx, turn.Request)
	s.metrics.Stage("generation", s.now().Sub(start))
	if err != nil {
		err = classify(gctx, "generation", err)
		recordSpanError(span, err)
		return res, err
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	return res, nil
}

// retry asks once more for a result that came back empty and unfinished. Any
// failure keeps the first result, so the caller falls back.
func (s *AssistantService) retry(ctx context.Context, turn *Turn, resumer Resumer, first models.CompletionResult) models.CompletionResult {
	d, ok := turn.budget.Retry()
	if !ok {
		s.log.Debug("retry skipped, budget exhausted", zap.String("request_id", turn.ID))
		return first
	}
	bctx, cancel := turn.budget.Context(ctx)
	defer cancel()
	rctx, cancelStage := context.WithTimeout(bctx, d)
	defer cancelStage()

	rctx, span := s.tracer.Start(rctx, "assistant.retry", trace.WithAttributes(
		attribute.String("request.id", turn.ID),
		attribute.String("response.id", first.ID),
	))
	defer span.End()

	start := s.now()
	res, err := resumer.Retrieve(rctx, first.ID)
	s.metrics.Stage("retry", s.now().Sub(start))
	if err != nil {
		err = classify(rctx, "retry", err)
		recordSpanError(span, err)
		s.log.Warn("retry failed", zap.String("request_id", turn.ID), zap.Error(err))
		return first
	}
	return res
}

// Stream sends meta, the deltas and done to sink. A failure after meta is
// reported as an error event followed by done{ok:false}; the error is also
// returned for the caller's bookkeeping.
func (s *AssistantService) Stream(ctx context.Context, turn *Turn, sink EventSink) error {
	err := sink.Send(models.EventMeta, models.MetaEvent{
		Model:           turn.Request.Model,
		DeadlineMS:      turn.Deadline().Milliseconds(),
		MaxOutputTokens: turn.Request.MaxOutputTokens,
		Sources:         turn.Sources(),
	})
	if err != nil {
		s.finish(turn, models.CompletionResult{}, 0, false, err)
		return err
	}

	start := s.now()
	res, err := s.streamGenerate(ctx, turn, func(d string) error {
		return sink.Send(models.EventDelta, models.DeltaEvent{Delta: d})
	})
	genDur := s.now().Sub(start)
	if err != nil {
		_ = sink.Send(models.EventError, models.ErrorEvent{Error: s.streamErrorMessage(turn.Lang, err)})
		_ = sink.Send(models.EventDone, models.DoneEvent{OK: false})
		s.finish(turn, res, genDur, false, err)
		return err
	}

	fallback := strings.TrimSpace(res.Text) == ""
	if fallback {
		answer := BuildFallbackAnswer(turn.Lang, turn.Question, turn.Passages)
		if err := sink.Send(models.EventDelta, models.DeltaEvent{Delta: answer}); err != nil {
			s.finish(turn, res, genDur, true, err)
			return err
		}
	}
	err = sink.Send(models.EventDone, models.DoneEvent{OK: true})
	s.finish(turn, res, genDur, fallback, err)
	return err
}

func (s *AssistantService) streamGenerate(ctx context.Context, turn *Turn, onDelta func(string) error) (models.CompletionResult, error) {
	d, err := turn.budget.Generation(false)
	if err != nil {
		return models.CompletionResult{}, err
	}
	bctx, cancel := turn.budget.Context(ctx)
	defer cancel()
	gctx, cancelStage := context.WithTimeout(bctx, d)
	defer cancelStage()

	gctx, span := s.tracer.Start(gctx, "assistant.generate", trace.WithAttributes(
		attribute.String("request.id", turn.ID),
		attribute.String("model", turn.Request.Model),
		attribute.Bool("stream", true),
	))
	defer span.End()

	start := s.now()
	res, err := s.generator.Stream(gctx, turn.Request, onDelta)
	s.metrics.Stage("generation", s.now().Sub(start))
	if err != nil {
		err = classify(gctx, "generation", err)
		recordSpanError(span, err)
	}
	return res, err
}

func (s *AssistantService) streamErrorMessage(l Lang, err error) string {
	if IsDeadline(err) {
		return TimeoutMessage(l)
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return StreamFailedMessage(l)
}

// finish records metrics and writes the one log line of a request.
func (s *AssistantService) finish(turn *Turn, res models.CompletionResult, genDur time.Duration, fallback bool, err error) {
	outcome := outcomeOf(turn.Mode, fallback, err)
	s.metrics.Request(turn.Mode, outcome)
	if fallback {
		s.metrics.Fallback(turn.Mode)
	}

	fields := []zap.Field{
		zap.String("request_id", turn.ID),
		zap.String("mode", turn.Mode),
		zap.String("lang", string(turn.Lang)),
		zap.Duration("elapsed", turn.budget.Elapsed()),
		zap.Duration("retrieval", turn.retrieval),
		zap.Duration("generation", genDur),
		zap.Int("sources", len(turn.Passages)),
		zap.Bool("fallback", fallback),
		zap.String("status", string(res.Status)),
		zap.String("outcome", outcome),
	}
	if res.Usage != nil {
		fields = append(fields,
			zap.Int("input_tokens", res.Usage.InputTokens),
			zap.Int("output_tokens", res.Usage.OutputTokens),
			zap.Int("total_tokens", res.Usage.TotalTokens),
		)
	}
	if err != nil {
		s.log.Warn("assistant request failed", append(fields, zap.Error(err))...)
		return
	}
	s.log.Info("assistant request", fields...)
}

func outcomeOf(mode string, fallback bool, err error) string {
	var (
		ve *ValidationError
		ce *ConfigError
		ue *UpstreamError
	)
	switch {
	case err == nil && fallback:
		return telemetry.OutcomeFallback
	case err == nil:
		return telemetry.OutcomeOK
	case errors.As(err, &ve):
		return telemetry.OutcomeInvalid
	case errors.As(err, &ce):
		return telemetry.OutcomeConfig
	case IsDeadline(err):
		return telemetry.OutcomeTimeout
	case errors.As(err, &ue):
		return telemetry.OutcomeUpstream
	case mode == ModeStream:
		return telemetry.OutcomeStreamError
	}
	return telemetry.OutcomeUpstream
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
