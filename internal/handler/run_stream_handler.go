package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/engine"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/service"
	"github.com/promptforge/promptforge-api/internal/utils"
)

// RunStreamHandler upgrades run progress subscriptions to websockets.
type RunStreamHandler struct {
	orchestrator *engine.Orchestrator
	hub          *service.RunEventHub
	logger       zerolog.Logger
}

// NewRunStreamHandler builds a run stream handler instance.
func NewRunStreamHandler(orchestrator *engine.Orchestrator, hub *service.RunEventHub, logger zerolog.Logger) *RunStreamHandler {
	return &RunStreamHandler{
		orchestrator: orchestrator,
		hub:          hub,
		logger:       logger.With().Str("component", "run_stream_handler").Logger(),
	}
}

// Register binds the stream route under the runs group. Ownership is checked
// before the upgrade so unauthorized clients never hold a socket.
func (h *RunStreamHandler) Register(router fiber.Router) {
	router.Use("/:id/stream", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		runID, err := parseUintParam(c, "id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		run, err := h.orchestrator.GetRun(c.Context(), userIDFromContext(c), runID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.SendError(c, fiber.StatusNotFound, "run not found")
			}
			h.logger.Error().Err(err).Msg("failed to load run for stream")
			return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
		}

		c.Locals("run_status", run.Status)
		return c.Next()
	})

	router.Get("/:id/stream", websocket.New(h.handleConnection))
}

func (h *RunStreamHandler) handleConnection(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	runID, err := streamRunID(conn)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid run id"))
		return
	}

	events, cleanup := h.hub.Subscribe(runID)
	defer cleanup()

	h.logger.Info().Uint("run_id", runID).Msg("run stream connected")

	// Terminal runs produce no further events; tell the client immediately
	// instead of holding an idle socket.
	if status, _ := conn.Locals("run_status").(string); isTerminalStatus(status) {
		_ = conn.WriteJSON(dto.RunEvent{Type: dto.RunEventFinished, RunID: runID, Status: status})
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if event.Type == dto.RunEventFinished {
				h.logger.Info().Uint("run_id", runID).Msg("run stream finished")
				return
			}
		case <-done:
			h.logger.Debug().Uint("run_id", runID).Msg("run stream client disconnected")
			return
		}
	}
}

func streamRunID(conn *websocket.Conn) (uint, error) {
	raw := strings.TrimSpace(conn.Params("id"))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func isTerminalStatus(status string) bool {
	return models.EvaluationRun{Status: status}.IsTerminal()
}
