package api

import (
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Generator: func() string { return uuid.NewString() },
	}))
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	s.app.Use(s.sessionMiddleware())

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.app.Group("/v1")

	// App-start may run without a session; the engine decides what a
	// cold start can do from the token it finds.
	v1.Post("/lifecycle/app-start", s.handleAppStart)
	v1.Post("/lifecycle/focus", s.handleFocus)

	protected := v1.Use(s.requireSession())

	protected.Post("/lifecycle/login", s.handleLogin)

	protected.Get("/regimens", s.handleListRegimens)
	protected.Post("/regimens", s.handleCreateRegimen)
	protected.Delete("/regimens/:id", s.handleDeleteRegimen)
	protected.Post("/regimens/:id/doses", s.handleRecordDose)
	protected.Get("/regimens/:id/adherence", s.handleAdherence)

	protected.Get("/reminders/status", s.handleReminderStatus)
}
