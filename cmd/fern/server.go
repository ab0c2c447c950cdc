package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/client"
	"github.com/Ramsey-B/fern/internal/repositories/conflict"
	"github.com/Ramsey-B/fern/internal/repositories/listing"
	"github.com/Ramsey-B/fern/internal/repositories/preference"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/notification"
	"github.com/Ramsey-B/fern/pkg/portals"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/routes/buyers"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/listings"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type handlers struct {
	listings    *listing.Repository
	clients     *client.Repository
	preferences *preference.Repository
	conflicts   *conflict.Repository
	registry    *portals.Registry
	ingest      *dedup.Service
	engine      *matching.Engine
	tracker     *notification.Tracker
	processor   *processor.Processor
}

type server struct {
	echo   *echo.Echo
	http   *http.Server
	logger ectologger.Logger
}

func newServer(cfg config.Config, logger ectologger.Logger, checker *health.Checker, h handlers) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	buyers.NewHandler(logger, h.clients, h.preferences, h.listings, h.engine, h.tracker).
		Register(e.Group("/buyers"))
	listings.NewHandler(logger, h.listings, h.conflicts, h.registry, h.ingest, h.processor).
		Register(e.Group("/listings"))

	return &server{
		echo: e,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		logger: logger,
	}
}

// Start serves in the background; listen errors after startup are logged.
func (s *server) Start(context.Context) error {
	go func() {
		if err := s.echo.StartServer(s.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
