package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-request-service/internal/api/dto"
	"github.com/spec-kit/it-request-service/internal/auth"
	"github.com/spec-kit/it-request-service/internal/service"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// ApprovalsHandler receives approver decisions.
type ApprovalsHandler struct {
	approvals *service.ApprovalService
	validator *dto.Validator
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvals *service.ApprovalService, validator *dto.Validator) *ApprovalsHandler {
	return &ApprovalsHandler{approvals: approvals, validator: validator}
}

// Decide POST /tickets/:id/approval.
func (h *ApprovalsHandler) Decide(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("approver required")
	}
	var req dto.ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}
	result, err := h.approvals.Decide(c.UserContext(), c.Params("id"), service.ApprovalDecision{
		Approver: principal.Subject,
		Approved: *req.Approved,
		Comment:  req.Comment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewApprovalResponse(result)})
}
