package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// RosterHandler serves the read side of the classroom dashboard.
type RosterHandler struct {
	service service.ClassroomService
	logger  zerolog.Logger
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(service service.ClassroomService, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		service: service,
		logger:  logger.With().Str("component", "roster_handler").Logger(),
	}
}

// Register attaches roster read routes to the classroom group.
func (h *RosterHandler) Register(router fiber.Router) {
	router.Get("/roster", h.view)
	router.Get("/students", h.students)
	router.Get("/teachers", h.teachers)
	router.Get("/sections", h.sections)
}

func (h *RosterHandler) view(c *fiber.Ctx) error {
	view, err := h.service.View(withRequestContext(c), middleware.SessionFromContext(c), rosterQueryFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load roster")
	}
	return utils.SendSuccess(c, "roster retrieved", view)
}

func (h *RosterHandler) students(c *fiber.Ctx) error {
	students, err := h.service.Students(withRequestContext(c), middleware.SessionFromContext(c), rosterQueryFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list students")
	}
	return utils.SendSuccess(c, "students retrieved", students)
}

func (h *RosterHandler) teachers(c *fiber.Ctx) error {
	teachers, err := h.service.Teachers(withRequestContext(c), middleware.SessionFromContext(c), c.Query("search"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list teachers")
	}
	return utils.SendSuccess(c, "teachers retrieved", teachers)
}

func (h *RosterHandler) sections(c *fiber.Ctx) error {
	sections, err := h.service.Sections(withRequestContext(c), middleware.SessionFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list sections")
	}
	return utils.SendSuccess(c, "sections retrieved", sections)
}
