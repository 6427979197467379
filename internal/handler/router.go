package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// RegisterRoutes mounts the API, the health check and the metrics endpoint.
// metrics may be nil.
func RegisterRoutes(app *fiber.App,
	assistant *AssistantHandler,
	health *HealthHandler,
	metrics http.Handler,
) {
	api := app.Group("/api")
	assistant.Register(api)

	health.Register(app)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}

// internalErrorMessage is shown for every failure without a public message.
const internalErrorMessage = "OpenAI request failed"

// NewErrorHandler renders every error as {"error": "..."} JSON. A *fiber.Error
// keeps its status and message; anything else is logged and answered with a
// generic 500.
func NewErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
		}
		log.Error("unhandled error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: internalErrorMessage})
	}
}
