package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-request-service/internal/api/dto"
	"github.com/spec-kit/it-request-service/internal/service"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// RequestsHandler starts and resumes request workflows.
type RequestsHandler struct {
	orchestrator *service.RequestOrchestrator
	validator    *dto.Validator
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(orchestrator *service.RequestOrchestrator, validator *dto.Validator) *RequestsHandler {
	return &RequestsHandler{orchestrator: orchestrator, validator: validator}
}

// Submit POST /requests.
func (h *RequestsHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}
	resp, err := h.orchestrator.Handle(c.UserContext(), req.ToService())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewAgentResponse(resp)})
}

// Resume POST /tickets/:id/resume.
func (h *RequestsHandler) Resume(c *fiber.Ctx) error {
	resp, err := h.orchestrator.Resume(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(resp)})
}
