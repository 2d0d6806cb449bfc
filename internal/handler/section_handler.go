package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// SectionHandler wires section administration and teacher assignment.
type SectionHandler struct {
	service service.SectionService
	avatars service.AvatarService
	logger  zerolog.Logger
}

// NewSectionHandler constructs the handler.
func NewSectionHandler(service service.SectionService, avatars service.AvatarService, logger zerolog.Logger) *SectionHandler {
	return &SectionHandler{
		service: service,
		avatars: avatars,
		logger:  logger.With().Str("component", "section_handler").Logger(),
	}
}

// Register attaches section and teacher mutation routes. Every route is admin only.
func (h *SectionHandler) Register(router fiber.Router) {
	admin := middleware.RequireAdmin()

	router.Post("/sections", admin, h.create)
	router.Patch("/sections/:id", admin, h.update)
	router.Delete("/sections/:id", admin, h.delete)
	router.Put("/teachers/:id/section", admin, h.assignTeacher)
	router.Delete("/teachers/:id/section", admin, h.unassignTeacher)
	router.Post("/teachers/:id/avatar", admin, h.uploadAvatar)
}

func (h *SectionHandler) create(c *fiber.Ctx) error {
	var payload dto.SectionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	section, err := h.service.Create(withRequestContext(c), activityActorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to create section")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "section created", section)
}

func (h *SectionHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.SectionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	section, err := h.service.Update(withRequestContext(c), activityActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update section")
	}
	return utils.SendSuccess(c, "section updated", section)
}

func (h *SectionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.service.Delete(withRequestContext(c), activityActorFromContext(c), id); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete section")
	}
	return utils.SendSuccess(c, "section deleted", fiber.Map{"id": id})
}

func (h *SectionHandler) assignTeacher(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.TeacherSectionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.SectionID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "section_id is required")
	}

	teacher, err := h.service.AssignTeacher(withRequestContext(c), activityActorFromContext(c), id, payload.SectionID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to assign teacher")
	}
	return utils.SendSuccess(c, "teacher assigned", teacher)
}

func (h *SectionHandler) unassignTeacher(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	teacher, err := h.service.UnassignTeacher(withRequestContext(c), activityActorFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to unassign teacher")
	}
	return utils.SendSuccess(c, "teacher unassigned", teacher)
}

func (h *SectionHandler) uploadAvatar(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	filename, content, err := readFormFile(c)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to read upload")
	}

	avatar, err := h.avatars.UploadTeacher(withRequestContext(c), activityActorFromContext(c), id, filename, content)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to upload avatar")
	}
	return utils.SendSuccess(c, "avatar updated", avatar)
}
