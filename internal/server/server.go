package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tarot-oracle/internal/config"
	"tarot-oracle/internal/models"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Generator produces text for a logical generation request.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

type Server struct {
	cfg     config.Config
	gen     Generator
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, gen Generator) (*Server, error) {
	if gen == nil {
		return nil, errors.New("generator must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = envelopeErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	srv := &Server{
		cfg:     cfg,
		gen:     gen,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg)
	slog.Info("starting server",
		"addr", s.address,
		"model", s.cfg.LLM.Model,
		"protocol", s.cfg.LLM.Protocol,
		"endpoints", s.cfg.LLM.Endpoints(),
	)

	// WriteTimeout stays unset; a generation spans several upstream attempts.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/healthz", s.handleHealth)
	s.app.POST("/api/psychic/intro", s.handleIntro)
	s.app.POST("/api/psychic/spread", s.handleSpread)
	s.app.POST("/api/generate", s.handleGenerate)
}

func printStartupBanner(cfg config.Config) {
	host := "127.0.0.1"
	port := cfg.Server.Port
	fmt.Println()
	fmt.Println("tarot-oracle ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Model: %s (%s)\n", cfg.LLM.Model, cfg.LLM.Protocol)
	fmt.Println("Upstream endpoints:")
	for _, endpoint := range cfg.LLM.Endpoints() {
		fmt.Printf("  %s\n", endpoint)
	}
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /healthz")
	fmt.Println("  POST /api/psychic/intro")
	fmt.Println("  POST /api/psychic/spread")
	fmt.Println("  POST /api/generate")
	fmt.Printf("Spread example:\n  curl http://%s:%d/api/psychic/spread -H 'Content-Type: application/json' -d '{\"cards\":[{\"number\":0},{\"number\":13,\"inverted\":true},{\"number\":19}]}'\n\n", host, port)
}
