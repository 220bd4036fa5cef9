package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/middleware"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/service"
	"github.com/noah-isme/fyp-go-api/internal/utils"
)

// ResultHandler exposes final result computation and release under /projects/:id/result.
type ResultHandler struct {
	service service.ScoringService
	logger  zerolog.Logger
}

// NewResultHandler builds a result handler instance.
func NewResultHandler(service service.ScoringService, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		service: service,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/:id/result", h.get)
	router.Post("/:id/result/compute", middleware.WithAuth(h.compute, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Post("/:id/result/release", h.release)
}

func (h *ResultHandler) get(c *fiber.Ctx) error {
	projectID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Get(requestContext(c), projectID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	// Draft results stay hidden from students until release.
	if userRoleFromContext(c) == models.RoleStudent && !result.Released {
		return respondError(c, h.logger, service.ErrResultNotFound)
	}

	return utils.SendSuccess(c, "final result retrieved", result)
}

func (h *ResultHandler) compute(c *fiber.Ctx) error {
	projectID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.ComputeFinalResult(requestContext(c), projectID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "final result computed", result)
}

func (h *ResultHandler) release(c *fiber.Ctx) error {
	projectID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Release(requestContext(c), actorFromContext(c), projectID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "final result released", result)
}
