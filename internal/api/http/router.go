package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unityvault/ticketflow/internal/api/http/handlers"
	"github.com/unityvault/ticketflow/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Config         *handlers.ConfigHandler
	Commands       *handlers.CommandsHandler
	Workflow       *handlers.WorkflowHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)
	v1.Post("/commands", cfg.Commands.Dispatch)

	v1.Post("/communities/:community/tickets", cfg.Tickets.CreateTicket)
	v1.Get("/communities/:community/users/:user/open-tickets", cfg.Tickets.OpenCount)
	v1.Get("/communities/:community/config", cfg.Config.GetConfig)
	v1.Patch("/communities/:community/config", cfg.Config.UpdateConfig)
	v1.Get("/communities/:community/onboarding-channel", cfg.Workflow.OnboardingChannel)

	v1.Post("/tickets/:id/close", cfg.Tickets.CloseTicket)
	v1.Post("/tickets/:id/escalate", cfg.Tickets.EscalateTicket)
	v1.Post("/tickets/:id/transcript", cfg.Workflow.AttachTranscript)
	v1.Get("/channels/:channel/ticket", cfg.Tickets.FindByChannel)
}
