package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health             *handlers.HealthHandler
	Auth               *handlers.AuthHandler
	Tickets            *handlers.TicketsHandler
	Jobs               *handlers.JobsHandler
	OperatorMiddleware *auth.OperatorMiddleware
}

// RegisterRoutes wires HTTP routes. Ticket ingress is open; ops routes
// require an operator token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.IssueToken)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)

	protected := tickets.Group("", cfg.OperatorMiddleware.Handle)
	protected.Post("/:id/status", cfg.Tickets.UpdateStatus)
	protected.Post("/:id/assign", cfg.Tickets.AssignTicket)

	ops := app.Group("/ops", cfg.OperatorMiddleware.Handle)
	ops.Get("/jobs/failed", cfg.Jobs.ListFailed)
	ops.Get("/jobs/:id", cfg.Jobs.GetJob)
	ops.Post("/jobs/:id/requeue", cfg.Jobs.RequeueFailed)
	ops.Get("/metrics", cfg.Jobs.Metrics)
}
