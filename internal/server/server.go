package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/infra"
	"github.com/cargo-track/cargo_track/internal/middleware"
	"github.com/cargo-track/cargo_track/internal/routes"
)

// Server wraps the Fiber application and the backend it serves.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	backend *infra.Backend
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, backend *infra.Backend, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !cfg.IsDev(),
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, Store: backend.Store, Cache: backend.Cache, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, backend: backend}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, drains in-flight ones and then closes
// the backend clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	return s.backend.Close()
}
