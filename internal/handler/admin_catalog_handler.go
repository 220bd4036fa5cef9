package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/service"
	"github.com/noah-isme/fyp-go-api/internal/utils"
)

// SweepRunner triggers a deadline sweep outside the cron schedule.
type SweepRunner interface {
	RunOnce(ctx context.Context) (service.SweepReport, bool, error)
}

// AdminCatalogHandler manages document types, deadline batches and deadlines.
type AdminCatalogHandler struct {
	service service.CatalogService
	sweeper SweepRunner
	logger  zerolog.Logger
}

// NewAdminCatalogHandler constructs the handler.
func NewAdminCatalogHandler(service service.CatalogService, sweeper SweepRunner, logger zerolog.Logger) *AdminCatalogHandler {
	return &AdminCatalogHandler{
		service: service,
		sweeper: sweeper,
		logger:  logger.With().Str("component", "admin_catalog_handler").Logger(),
	}
}

// Register attaches catalog routes to the admin router group.
func (h *AdminCatalogHandler) Register(router fiber.Router) {
	router.Post("/document-types", h.createDocumentType)
	router.Get("/document-types", h.listDocumentTypes)
	router.Post("/batches", h.createBatch)
	router.Get("/batches", h.listBatches)
	router.Post("/deadlines", h.createDeadline)
	router.Get("/deadlines", h.listDeadlines)
	router.Post("/deadlines/sweep", h.sweep)
}

func (h *AdminCatalogHandler) createDocumentType(c *fiber.Ctx) error {
	var payload dto.DocumentTypeCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	documentType, err := h.service.CreateDocumentType(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "document type created", documentType)
}

func (h *AdminCatalogHandler) listDocumentTypes(c *fiber.Ctx) error {
	activeOnly := strings.EqualFold(c.Query("active"), "true")

	items, err := h.service.ListDocumentTypes(requestContext(c), activeOnly)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "document types", items)
}

func (h *AdminCatalogHandler) createBatch(c *fiber.Ctx) error {
	var payload dto.BatchCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := h.service.CreateBatch(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "deadline batch created", batch)
}

func (h *AdminCatalogHandler) listBatches(c *fiber.Ctx) error {
	items, err := h.service.ListBatches(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "deadline batches", items)
}

func (h *AdminCatalogHandler) createDeadline(c *fiber.Ctx) error {
	var payload dto.DeadlineCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	deadline, err := h.service.CreateDeadline(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "deadline created", deadline)
}

func (h *AdminCatalogHandler) listDeadlines(c *fiber.Ctx) error {
	documentTypeID, err := parseQueryUint(c, "document_type_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	filter := repository.DeadlineFilter{
		DocumentTypeID: documentTypeID,
		PendingOnly:    strings.EqualFold(c.Query("pending"), "true"),
	}

	items, err := h.service.ListDeadlines(requestContext(c), filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "deadlines", items)
}

func (h *AdminCatalogHandler) sweep(c *fiber.Ctx) error {
	if h.sweeper == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "deadline sweep unavailable")
	}

	report, ran, err := h.sweeper.RunOnce(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !ran {
		return utils.SendErrorCode(c, fiber.StatusConflict, "sweep_running", "deadline sweep already running")
	}

	requestLogger(h.logger, c).Info().
		Uint("actor_id", userIDFromContext(c)).
		Int("locked", report.Locked).
		Int("missed", report.Missed).
		Int("failures", report.Failures).
		Msg("manual deadline sweep completed")

	return utils.SendSuccess(c, "deadline sweep completed", report)
}
