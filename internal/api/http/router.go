package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/edusupport/internal/api/http/handlers"
	"github.com/spec-kit/edusupport/internal/auth"
	"github.com/spec-kit/edusupport/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Chat           *handlers.ChatHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Post("", auth.RequireRole(domain.RoleStudent), cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Put("/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.Assign)
	tickets.Put("/:id/status", auth.RequireRole(domain.RoleTeacher, domain.RoleAdmin), cfg.Tickets.UpdateStatus)

	tickets.Get("/:id/chat", cfg.Chat.Transcript)
	tickets.Post("/:id/chat/messages", cfg.Chat.SendMessage)

	messages := api.Group("/chat/messages")
	messages.Patch("/:id/delivered", cfg.Chat.MarkDelivered)
	messages.Patch("/:id/seen", cfg.Chat.MarkSeen)
	messages.Get("/:id/status", cfg.Chat.DeliveryStatus)

	// Websocket auth rides in the query string, not the auth middleware.
	app.Get("/ws/tickets/:id", cfg.WS.Upgrade, cfg.WS.Handle())
}
