package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/entrepreneur-whisperer/site/server/internal/middleware"
	"github.com/entrepreneur-whisperer/site/server/internal/models"
	"github.com/entrepreneur-whisperer/site/server/internal/service"
	"github.com/entrepreneur-whisperer/site/server/internal/sse"
)

var langMatcher = language.NewMatcher([]language.Tag{language.French, language.English})

// AssistantHandler wires HTTP → AssistantService.
type AssistantHandler struct {
	svc      *service.AssistantService
	validate *validator.Validate
	log      *zap.Logger
}

// NewAssistantHandler returns a struct pointer so you can call Register on it.
func NewAssistantHandler(svc *service.AssistantService, log *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With(zap.String("component", "handler")),
	}
}

// Register mounts /assistant on the supplied router group. Only POST is
// served; every other method gets a 405.
func (h *AssistantHandler) Register(r fiber.Router) {
	r.Post("/assistant", h.assist)
	r.All("/assistant", h.methodNotAllowed)
}

func (h *AssistantHandler) methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return fiber.NewError(fiber.StatusMethodNotAllowed, "Method Not Allowed")
}

// assist handles POST /assistant  { "message": "...", "history": [...], "stream": bool }
func (h *AssistantHandler) assist(c *fiber.Ctx) error {
	req := decodeRequest(c.Body())
	req.Message = strings.TrimSpace(req.Message)
	lang := h.resolveLang(c, req.Lang)

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() == "max" {
			return fiber.NewError(fiber.StatusBadRequest, service.MessageTooLong(lang))
		}
		// required: reported by Prepare, after the configuration check.
	}

	mode := service.ModeBuffered
	if req.Stream || strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream") {
		mode = service.ModeStream
	}

	turn, err := h.svc.Prepare(c.UserContext(), middleware.RequestIDFrom(c), lang, mode, req)
	if err != nil {
		return h.fail(lang, err)
	}

	if mode == service.ModeStream {
		return h.stream(c, turn)
	}

	resp, err := h.svc.Answer(c.UserContext(), turn)
	if err != nil {
		return h.fail(lang, err)
	}
	return c.JSON(resp)
}

// decodeRequest reads the body field by field. A body that is not a JSON
// object gives an empty request; a field of the wrong type is dropped alone.
func decodeRequest(body []byte) models.AssistantRequest {
	var (
		req    models.AssistantRequest
		fields map[string]json.RawMessage
	)
	if err := json.Unmarshal(body, &fields); err != nil {
		return req
	}
	req.Message = scalarString(fields["message"])
	req.Lang = scalarString(fields["lang"])
	_ = json.Unmarshal(fields["stream"], &req.Stream)

	var items []json.RawMessage
	if err := json.Unmarshal(fields["history"], &items); err != nil {
		return req
	}
	for _, raw := range items {
		var turn map[string]json.RawMessage
		if err := json.Unmarshal(raw, &turn); err != nil {
			continue
		}
		req.History = append(req.History, models.ChatTurn{
			Role:    scalarString(turn["role"]),
			Content: scalarString(turn["content"]),
		})
	}
	return req
}

// scalarString returns a JSON string as is and a number or boolean as its
// literal. Anything else is "".
func scalarString(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case float64, bool:
		return strings.TrimSpace(string(raw))
	}
	return ""
}

// stream switches the response to text/event-stream. The body writer runs
// after this handler returns, so generation is detached from the Fiber
// context and bounded by the turn's own deadline.
func (h *AssistantHandler) stream(c *fiber.Ctx, turn *service.Turn) error {
	c.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-transform")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Status(fiber.StatusOK)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		sw := sse.NewWriter(w, w)
		defer sw.Close()
		if err := h.svc.Stream(context.Background(), turn, sw); err != nil {
			h.log.Debug("stream ended with error", zap.String("request_id", turn.ID), zap.Error(err))
		}
	})
	return nil
}

// fail is the single place mapping pipeline errors to HTTP statuses.
func (h *AssistantHandler) fail(lang service.Lang, err error) error {
	var (
		ve *service.ValidationError
		ce *service.ConfigError
		ue *service.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return fiber.NewError(fiber.StatusBadRequest, ve.Message)
	case errors.As(err, &ce):
		return fiber.NewError(fiber.StatusInternalServerError, ce.Error())
	case service.IsDeadline(err):
		return fiber.NewError(fiber.StatusGatewayTimeout, service.TimeoutMessage(lang))
	case errors.As(err, &ue):
		return fiber.NewError(ue.HTTPStatus(), ue.Message)
	}
	h.log.Error("unclassified pipeline error", zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, internalErrorMessage)
}

// resolveLang prefers the explicit body field, then Accept-Language, then French.
func (h *AssistantHandler) resolveLang(c *fiber.Ctx, explicit string) service.Lang {
	if l, ok := service.ParseLang(explicit); ok {
		return l
	}
	tags, _, err := language.ParseAcceptLanguage(c.Get(fiber.HeaderAcceptLanguage))
	if err != nil || len(tags) == 0 {
		return service.French
	}
	_, idx, conf := langMatcher.Match(tags...)
	if conf == language.No || idx != 1 {
		return service.French
	}
	return service.English
}
