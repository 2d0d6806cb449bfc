package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/roster"
	"github.com/noah-isme/classroom-api/internal/service"
)

// Stream frame types.
const (
	FrameRosterSnapshot = "roster.snapshot"
	FrameRosterError    = "roster.error"
)

const streamWriteTimeout = 10 * time.Second

// StreamHandler pushes a fresh roster view to websocket clients whenever the
// roster changes anywhere in the deployment.
type StreamHandler struct {
	roster       service.ClassroomService
	events       service.RosterEvents
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(roster service.ClassroomService, events service.RosterEvents, pingInterval time.Duration, logger zerolog.Logger) *StreamHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &StreamHandler{
		roster:       roster,
		events:       events,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "stream_handler").Logger(),
	}
}

// Register binds the websocket upgrade route.
func (h *StreamHandler) Register(router fiber.Router) {
	router.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", withRequestContext(c))
			c.Locals("roster_session", middleware.SessionFromContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/stream", websocket.New(h.handleConnection))
}

func (h *StreamHandler) handleConnection(conn *websocket.Conn) {
	session, _ := conn.Locals("roster_session").(roster.Session)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	// The connection owns ctx; a view loaded after the client left is dropped.
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	query := dto.RosterQuery{Search: conn.Query("search"), Section: conn.Query("section")}
	queries := make(chan dto.RosterQuery, 1)
	go h.readQueries(ctx, cancel, conn, queries)

	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	logger := h.logger.With().Uint("user_id", session.UserID).Str("role", string(session.Role)).Logger()
	logger.Info().Msg("roster stream connected")
	defer logger.Info().Msg("roster stream disconnected")

	if !h.push(ctx, conn, session, query, nil) {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-queries:
			query = next
			if !h.push(ctx, conn, session, query, nil) {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if !h.push(ctx, conn, session, query, &event) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug().Err(err).Msg("roster stream ping failed")
				return
			}
		}
	}
}

// push re-fetches the full view for the session and writes it. It reports
// false when the connection should be closed.
func (h *StreamHandler) push(ctx context.Context, conn *websocket.Conn, session roster.Session, query dto.RosterQuery, event *dto.RosterChangeEvent) bool {
	view, err := h.roster.View(ctx, session, query)
	if ctx.Err() != nil {
		return false
	}

	frame := dto.RosterStreamFrame{Type: FrameRosterSnapshot, Event: event}
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to refresh roster for stream")
		frame = dto.RosterStreamFrame{Type: FrameRosterError, Event: event, Error: "failed to load roster"}
	} else {
		frame.Roster = &view
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write roster frame")
		return false
	}
	return true
}

// readQueries consumes client messages. A JSON roster query replaces the
// current filter; any read error ends the connection.
func (h *StreamHandler) readQueries(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, queries chan<- dto.RosterQuery) {
	defer cancel()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var query dto.RosterQuery
		if err := json.Unmarshal(payload, &query); err != nil {
			h.logger.Debug().Err(err).Msg("ignoring invalid stream message")
			continue
		}
		select {
		case queries <- query:
		case <-ctx.Done():
			return
		}
	}
}
