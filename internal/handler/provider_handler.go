package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/service"
	"github.com/promptforge/promptforge-api/internal/utils"
)

// ProviderHandler manages provider and model endpoints.
type ProviderHandler struct {
	service service.ProviderService
	logger  zerolog.Logger
}

// NewProviderHandler builds a provider handler instance.
func NewProviderHandler(service service.ProviderService, logger zerolog.Logger) *ProviderHandler {
	return &ProviderHandler{
		service: service,
		logger:  logger.With().Str("component", "provider_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ProviderHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/models", h.addModel)
	router.Delete("/:id/models/:modelId", h.deleteModel)
}

func (h *ProviderHandler) create(c *fiber.Ctx) error {
	var payload dto.ProviderCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	provider, err := h.service.Create(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "provider registered", provider)
}

func (h *ProviderHandler) list(c *fiber.Ctx) error {
	providers, err := h.service.List(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "providers retrieved", providers)
}

func (h *ProviderHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	provider, err := h.service.Get(c.Context(), userIDFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "provider retrieved", provider)
}

func (h *ProviderHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ProviderUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	provider, err := h.service.Update(c.Context(), userIDFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "provider updated", provider)
}

func (h *ProviderHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), userIDFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "provider deleted", nil)
}

func (h *ProviderHandler) addModel(c *fiber.Ctx) error {
	providerID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ModelCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	model, err := h.service.AddModel(c.Context(), userIDFromContext(c), providerID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "model added", model)
}

func (h *ProviderHandler) deleteModel(c *fiber.Ctx) error {
	modelID, err := parseUintParam(c, "modelId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteModel(c.Context(), userIDFromContext(c), modelID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "model deleted", nil)
}

func (h *ProviderHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "provider not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
