package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// StudentHandler wires student mutation endpoints.
type StudentHandler struct {
	service service.StudentService
	avatars service.AvatarService
	logger  zerolog.Logger
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service service.StudentService, avatars service.AvatarService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		service: service,
		avatars: avatars,
		logger:  logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches student routes to the classroom group.
func (h *StudentHandler) Register(router fiber.Router) {
	admin := middleware.RequireAdmin()
	staff := middleware.RequireStaff()

	router.Patch("/students/:id/section", admin, h.assignSection)
	router.Post("/students/bulk", staff, h.bulk)
	router.Post("/students/import", admin, h.importRoster)
	router.Post("/students/:id/avatar", admin, h.uploadAvatar)
}

func (h *StudentHandler) assignSection(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.StudentSectionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.AssignSection(withRequestContext(c), activityActorFromContext(c), id, payload.SectionID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update student section")
	}
	return utils.SendSuccess(c, "student section updated", student)
}

func (h *StudentHandler) bulk(c *fiber.Ctx) error {
	var payload dto.BulkStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Bulk(withRequestContext(c), middleware.SessionFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "bulk action failed")
	}
	return utils.SendSuccess(c, "bulk action applied", result)
}

func (h *StudentHandler) importRoster(c *fiber.Ctx) error {
	_, content, err := readFormFile(c)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to read upload")
	}

	result, err := h.service.Import(withRequestContext(c), activityActorFromContext(c), content)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to import students")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "students imported", result)
}

func (h *StudentHandler) uploadAvatar(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	filename, content, err := readFormFile(c)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to read upload")
	}

	avatar, err := h.avatars.UploadStudent(withRequestContext(c), activityActorFromContext(c), id, filename, content)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to upload avatar")
	}
	return utils.SendSuccess(c, "avatar updated", avatar)
}
