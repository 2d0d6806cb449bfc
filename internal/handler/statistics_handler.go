package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/service"
	"github.com/noah-isme/classroom-api/internal/utils"
)

// StatisticsHandler serves chart data and narrative insights.
type StatisticsHandler struct {
	service service.StatisticsService
	logger  zerolog.Logger
}

// NewStatisticsHandler constructs the handler.
func NewStatisticsHandler(service service.StatisticsService, logger zerolog.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		service: service,
		logger:  logger.With().Str("component", "statistics_handler").Logger(),
	}
}

// Register attaches statistics routes to the router group.
func (h *StatisticsHandler) Register(router fiber.Router) {
	router.Get("", h.get)
	router.Get("/insights", h.insights)
}

func (h *StatisticsHandler) get(c *fiber.Ctx) error {
	query, err := statisticsQueryFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.service.Get(withRequestContext(c), middleware.SessionFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load statistics")
	}
	return utils.SendSuccess(c, "statistics retrieved", stats)
}

func (h *StatisticsHandler) insights(c *fiber.Ctx) error {
	query, err := statisticsQueryFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	insight, err := h.service.Insights(withRequestContext(c), middleware.SessionFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to generate insights")
	}
	return utils.SendSuccess(c, "statistics insight generated", insight)
}

func statisticsQueryFromContext(c *fiber.Ctx) (dto.StatisticsQuery, error) {
	query := dto.StatisticsQuery{
		Bucket:  strings.ToLower(strings.TrimSpace(c.Query("bucket"))),
		Section: c.Query("section"),
	}

	var err error
	if query.From, err = parseTimeQuery(c.Query("from")); err != nil {
		return query, fiber.NewError(fiber.StatusBadRequest, "invalid from")
	}
	if query.To, err = parseTimeQuery(c.Query("to")); err != nil {
		return query, fiber.NewError(fiber.StatusBadRequest, "invalid to")
	}
	return query, nil
}

// parseTimeQuery accepts RFC3339 timestamps or plain dates, read as UTC midnight.
func parseTimeQuery(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}
