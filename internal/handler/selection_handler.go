package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// SelectionHandler exposes the per-user row selection of the roster table.
type SelectionHandler struct {
	service service.SelectionService
	logger  zerolog.Logger
}

// NewSelectionHandler constructs the handler.
func NewSelectionHandler(service service.SelectionService, logger zerolog.Logger) *SelectionHandler {
	return &SelectionHandler{
		service: service,
		logger:  logger.With().Str("component", "selection_handler").Logger(),
	}
}

// Register attaches selection routes to the classroom group.
func (h *SelectionHandler) Register(router fiber.Router) {
	router.Get("/selection", h.get)
	router.Post("/selection/toggle", h.toggle)
	router.Post("/selection/toggle-all", h.toggleAll)
	router.Delete("/selection", h.clear)
}

func (h *SelectionHandler) get(c *fiber.Ctx) error {
	selection, err := h.service.Get(withRequestContext(c), middleware.SessionFromContext(c), rosterQueryFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load selection")
	}
	return utils.SendSuccess(c, "selection retrieved", selection)
}

func (h *SelectionHandler) toggle(c *fiber.Ctx) error {
	var payload dto.SelectionToggleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	selection, err := h.service.Toggle(withRequestContext(c), middleware.SessionFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update selection")
	}
	return utils.SendSuccess(c, "selection updated", selection)
}

func (h *SelectionHandler) toggleAll(c *fiber.Ctx) error {
	var payload dto.SelectionToggleAllRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	selection, err := h.service.ToggleAll(withRequestContext(c), middleware.SessionFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update selection")
	}
	return utils.SendSuccess(c, "selection updated", selection)
}

func (h *SelectionHandler) clear(c *fiber.Ctx) error {
	selection, err := h.service.Clear(withRequestContext(c), middleware.SessionFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to clear selection")
	}
	return utils.SendSuccess(c, "selection cleared", selection)
}
