package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// ExportHandler streams the visible roster as CSV, PDF or XLSX.
type ExportHandler struct {
	service service.ExportService
	logger  zerolog.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(service service.ExportService, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger.With().Str("component", "export_handler").Logger(),
	}
}

// Register attaches the export route to the classroom group.
func (h *ExportHandler) Register(router fiber.Router) {
	router.Get("/export.:format", h.export)
}

func (h *ExportHandler) export(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Params("format")))

	file, err := h.service.Export(withRequestContext(c), middleware.SessionFromContext(c), rosterQueryFromContext(c), format)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to export students")
	}

	return utils.SendAttachment(c, file.ContentType, file.Filename, file.Body)
}
