package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-request-service/internal/api/dto"
	"github.com/spec-kit/it-request-service/internal/repository"
	"github.com/spec-kit/it-request-service/internal/service"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// TicketsHandler serves ticket queries.
type TicketsHandler struct {
	query     *service.TicketQueryService
	validator *dto.Validator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(query *service.TicketQueryService, validator *dto.Validator) *TicketsHandler {
	return &TicketsHandler{query: query, validator: validator}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	var q dto.TicketListQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := h.validator.Struct(q); err != nil {
		return err
	}
	tickets, err := h.query.List(c.UserContext(), repository.ListOptions{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, dto.NewTicketSummary(t))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.query.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// ListEvents GET /tickets/:id/events.
func (h *TicketsHandler) ListEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apperrors.NewValidationError("invalid query", map[string]any{"limit": "min"})
	}
	timeline, err := h.query.Timeline(c.UserContext(), c.Params("id"), int64(limit))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEvents(timeline)})
}
