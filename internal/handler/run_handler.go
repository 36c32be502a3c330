package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/engine"
	"github.com/promptforge/promptforge-api/internal/utils"
)

// RunHandler manages evaluation run lifecycle endpoints.
type RunHandler struct {
	orchestrator *engine.Orchestrator
	logger       zerolog.Logger
}

// NewRunHandler builds a run handler instance.
func NewRunHandler(orchestrator *engine.Orchestrator, logger zerolog.Logger) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "run_handler").Logger(),
	}
}

// RegisterStart attaches the run start route under the evaluations group.
func (h *RunHandler) RegisterStart(router fiber.Router, limiter fiber.Handler) {
	if limiter != nil {
		router.Post("/:id/runs", limiter, h.start)
		return
	}
	router.Post("/:id/runs", h.start)
}

// Register attaches run routes to the provided router group.
func (h *RunHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Get("/:id/results", h.results)
	router.Post("/:id/stop", h.stop)
}

func (h *RunHandler) start(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	run, err := h.orchestrator.StartRun(c.Context(), userIDFromContext(c), evaluationID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "run started", dto.NewRunResponse(run))
}

func (h *RunHandler) get(c *fiber.Ctx) error {
	runID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	run, err := h.orchestrator.GetRun(c.Context(), userIDFromContext(c), runID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "run retrieved", dto.NewRunResponse(run))
}

func (h *RunHandler) results(c *fiber.Ctx) error {
	runID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.orchestrator.GetRunResults(c.Context(), userIDFromContext(c), runID)
	if err != nil {
		return h.handleError(c, err)
	}

	items := make([]dto.TestCaseResultResponse, 0, len(results))
	for _, result := range results {
		items = append(items, dto.NewTestCaseResultResponse(result))
	}

	return utils.SendSuccess(c, "run results retrieved", items)
}

func (h *RunHandler) stop(c *fiber.Ctx) error {
	runID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.orchestrator.StopRun(c.Context(), userIDFromContext(c), runID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "run stop requested", nil)
}

func (h *RunHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "run not found")
	case errors.Is(err, engine.ErrInvalidState):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRunNotActive):
		return utils.SendError(c, fiber.StatusConflict, "run is not active")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
