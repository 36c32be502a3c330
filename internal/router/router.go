package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/promptforge/promptforge-api/internal/config"
	"github.com/promptforge/promptforge-api/internal/handler"
	"github.com/promptforge/promptforge-api/internal/middleware"
	"github.com/promptforge/promptforge-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PromptHandler     *handler.PromptHandler
	ProviderHandler   *handler.ProviderHandler
	EvaluationHandler *handler.EvaluationHandler
	RunHandler        *handler.RunHandler
	RunStreamHandler  *handler.RunStreamHandler
	AttachmentHandler *handler.AttachmentHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.PromptHandler != nil {
		prompts := api.Group("/prompts", jwtMiddleware)
		deps.PromptHandler.Register(prompts)
	}

	if deps.ProviderHandler != nil {
		providers := api.Group("/providers", jwtMiddleware)
		deps.ProviderHandler.Register(providers)
	}

	if deps.EvaluationHandler != nil {
		evaluations := api.Group("/evaluations", jwtMiddleware)

		if deps.RunHandler != nil {
			deps.RunHandler.RegisterStart(evaluations, middleware.RateLimit("run-start", cfg.RunStartRateLimit, time.Minute))
		}

		deps.EvaluationHandler.Register(evaluations)
	}

	if deps.RunHandler != nil {
		runs := api.Group("/runs", jwtMiddleware)
		deps.RunHandler.Register(runs)

		if deps.RunStreamHandler != nil {
			deps.RunStreamHandler.Register(runs)
		}
	}

	if deps.AttachmentHandler != nil {
		attachments := api.Group("/attachments", jwtMiddleware)
		deps.AttachmentHandler.Register(attachments, middleware.RateLimit("attachment-upload", cfg.UploadRateLimit, time.Minute))
	}
}
