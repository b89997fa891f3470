package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/lifecycle"
)

// Server exposes the schedule engine over HTTP for the embedding app
// shell: lifecycle signals in, regimen and reminder state out.
type Server struct {
	app         *fiber.App
	config      *config.Config
	coordinator *lifecycle.Coordinator
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
}

func New(cfg *config.Config, coordinator *lifecycle.Coordinator, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	s := &Server{
		app:         app,
		config:      cfg,
		coordinator: coordinator,
		gatherer:    gatherer,
		logger:      logger,
	}

	s.setupRoutes()
	return s
}

// App returns the underlying fiber app, used by tests to drive
// requests without a listener.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
