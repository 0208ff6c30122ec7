package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-request-service/internal/api/http/handlers"
	"github.com/spec-kit/it-request-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Requests  *handlers.RequestsHandler
	Tickets   *handlers.TicketsHandler
	Approvals *handlers.ApprovalsHandler
	APIKey    fiber.Handler
	Approver  fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	service := guard(cfg.APIKey, auth.RequireRole(auth.RoleService))
	app.Post("/requests", service(cfg.Requests.Submit)...)
	app.Get("/tickets", service(cfg.Tickets.ListTickets)...)
	app.Get("/tickets/:id", service(cfg.Tickets.GetTicket)...)
	app.Get("/tickets/:id/events", service(cfg.Tickets.ListEvents)...)
	app.Post("/tickets/:id/resume", service(cfg.Requests.Resume)...)

	approver := guard(cfg.Approver, auth.RequireRole(auth.RoleApprover))
	app.Post("/tickets/:id/approval", approver(cfg.Approvals.Decide)...)
}

// guard prefixes a route handler with middleware.
func guard(middleware ...fiber.Handler) func(fiber.Handler) []fiber.Handler {
	return func(h fiber.Handler) []fiber.Handler {
		chain := make([]fiber.Handler, 0, len(middleware)+1)
		chain = append(chain, middleware...)
		return append(chain, h)
	}
}
