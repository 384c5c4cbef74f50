package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/devtrail/devtrail-api/internal/dto"
	"github.com/devtrail/devtrail-api/internal/service"
	"github.com/devtrail/devtrail-api/internal/utils"
)

// ReviewHandler manages submission review endpoints.
type ReviewHandler struct {
	service   service.ReviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReviewHandler builds a review handler instance.
func NewReviewHandler(service service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Post("/submissions/:id/review", h.run)
	router.Get("/submissions/:id/review", h.get)
	router.Get("/reviews/availability", h.availability)
}

func (h *ReviewHandler) run(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	// The body is optional; force may also arrive as a query parameter.
	var payload dto.ReviewRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if c.QueryBool("force") {
		payload.Force = true
	}

	review, err := h.service.Run(c.Context(), id, payload)
	if err != nil {
		if errors.Is(err, service.ErrReviewFailed) {
			// The failure was persisted; return the failed review alongside
			// a gateway error so clients can inspect the stored state.
			return c.Status(fiber.StatusBadGateway).JSON(utils.APIResponse{
				Success: false,
				Data:    review,
				Message: "review failed",
			})
		}
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review completed", review)
}

func (h *ReviewHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	review, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review retrieved", review)
}

func (h *ReviewHandler) availability(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "review availability", dto.ReviewAvailabilityResponse{
		Available: h.service.Available(),
	})
}

func (h *ReviewHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrReviewNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "review not found")
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "review generator unavailable")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
