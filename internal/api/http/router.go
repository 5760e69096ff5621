package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Sync           *handlers.SyncHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	sync := api.Group("/sync")
	sync.Get("/status", auth.RequireAnyRole(), cfg.Sync.Status)
	sync.Get("/config", auth.RequireAnyRole(), cfg.Sync.GetConfig)
	sync.Post("", auth.RequireRole(domain.RoleOperator), cfg.Sync.Run)
	sync.Put("/config", auth.RequireRole(domain.RoleOperator), cfg.Sync.UpdateConfig)

	tickets := api.Group("/tickets")
	tickets.Get("", auth.RequireAnyRole(), cfg.Tickets.ListTickets)
	tickets.Get("/:id", auth.RequireAnyRole(), cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", auth.RequireAnyRole(), cfg.Tickets.ListHistory)
	tickets.Post("/:id/translation", auth.RequireRole(domain.RoleWorker), cfg.Tickets.SubmitTranslation)
	tickets.Post("/:id/reply", auth.RequireRole(domain.RoleWorker), cfg.Tickets.SubmitReply)
	tickets.Post("/:id/audit", auth.RequireRole(domain.RoleAuditor), cfg.Tickets.SubmitAudit)
	tickets.Post("/:id/ai-translate", auth.RequireRole(domain.RoleOperator), cfg.Tickets.TriggerTranslation)
	tickets.Post("/:id/ai-reply", auth.RequireRole(domain.RoleOperator), cfg.Tickets.TriggerReply)
	tickets.Post("/:id/valid", auth.RequireRole(domain.RoleOperator), cfg.Tickets.UpdateValidity)
}
