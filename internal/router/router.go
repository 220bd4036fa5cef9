package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/fyp-go-api/internal/config"
	"github.com/noah-isme/fyp-go-api/internal/handler"
	"github.com/noah-isme/fyp-go-api/internal/middleware"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ProjectHandler       *handler.ProjectHandler
	ResultHandler        *handler.ResultHandler
	SubmissionHandler    *handler.SubmissionHandler
	EvaluationHandler    *handler.EvaluationHandler
	AdminCatalogHandler  *handler.AdminCatalogHandler
	AdminActivityHandler *handler.AdminActivityHandler
	NotificationHandler  *handler.NotificationHandler
	HealthProbes         map[string]handler.HealthProbe
	JWTMiddleware        fiber.Handler
	// SubmissionLimiter throttles the submission routes, uploads included.
	SubmissionLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	projects := api.Group("/projects", jwtMiddleware)
	if deps.ProjectHandler != nil {
		deps.ProjectHandler.Register(projects)
	}
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(projects)
	}

	submissionMiddleware := []fiber.Handler{jwtMiddleware}
	if deps.SubmissionLimiter != nil {
		submissionMiddleware = append(submissionMiddleware, deps.SubmissionLimiter)
	}
	submissions := api.Group("/submissions", submissionMiddleware...)
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(submissions)
	}

	admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(models.RoleAdmin, models.RoleCoordinator))
	if deps.AdminCatalogHandler != nil {
		deps.AdminCatalogHandler.Register(admin)
	}
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(admin.Group("/activity"))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}
}
