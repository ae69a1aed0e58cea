package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Queue          *handlers.QueueHandler
	StaffQueue     *handlers.StaffQueueHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	queueGroup := api.Group("/queue", cfg.AuthMiddleware.Handle)
	queueGroup.Post("/book", cfg.Queue.Book)
	queueGroup.Post("/next", auth.RequireStaff(), cfg.StaffQueue.Next)
	queueGroup.Post("/complete", auth.RequireStaff(), cfg.StaffQueue.Complete)
	queueGroup.Get("/all", auth.RequireStaff(), cfg.StaffQueue.ListAll)

	userGroup := api.Group("/user", cfg.AuthMiddleware.Handle)
	userGroup.Get("/profile", cfg.Users.GetProfile)
	userGroup.Put("/profile", cfg.Users.UpdateProfile)
	userGroup.Get("/bookings", cfg.Queue.ListBookings)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(cfg.WS.Handle))
}
