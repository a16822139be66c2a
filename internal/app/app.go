package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"aquaexport/internal/config"
	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/files"
	"aquaexport/internal/infrastructure"
	customMiddleware "aquaexport/internal/middleware"
	"aquaexport/internal/operations"
	"aquaexport/internal/scheduler"
	handlers "aquaexport/internal/transport/http"
	ws "aquaexport/internal/websocket"
	"aquaexport/pkg/contracts"
)

// API rate limit per client
const (
	apiRateLimit = 20
	apiBurst     = 40
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Components    *Components
	WebSocketHub  *ws.Hub
	Scheduler     *scheduler.Nightly
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication wires every component of the export service. The returned
// application owns the database handle and the run store.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.InfoContext(ctx, "Application starting",
		slog.String("version", contracts.GetVersionString()),
		slog.Int("port", cfg.Server.Port))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	hub := ws.NewHub(logger, otelProviders.Meter)

	components, err := NewComponents(ctx, cfg, otelProviders, logger,
		operations.WithListener(hub),
		operations.WithListener(operations.NewLogListener(logger)))
	if err != nil {
		otelProviders.Shutdown(ctx)
		return nil, err
	}

	app := &Application{
		Config:        cfg,
		Components:    components,
		WebSocketHub:  hub,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if cfg.Scheduler.Enabled {
		loc, _ := cfg.Location()
		nightly, err := scheduler.NewNightly(cfg.Scheduler, loc, components.Manager, logger)
		if err != nil {
			components.Close()
			otelProviders.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
		app.Scheduler = nightly
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apperrors.NewErrorHandler(a.Logger, false)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// The upgrade needs the raw ResponseWriter.
	r.Get("/ws", ws.ServeWS(a.WebSocketHub, a.Logger))

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(errorHandler.Recoverer)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout))

		health := handlers.NewHealthHandler(a.healthChecks(), a.Logger)
		r.Get("/healthz", health.LivenessCheck)
		r.Get("/readyz", health.ReadinessCheck)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Use(customMiddleware.NewRateLimiter(apiRateLimit, apiBurst, a.Logger).Handler)

			r.Get("/version", health.Version)
			r.Mount("/exports", handlers.NewExportHandler(a.Components.Manager, a.Logger).Routes())
			r.Mount("/workbooks", handlers.NewWorkbookHandler(
				files.NewDiscovery(a.Config.Export.Directory, a.Components.Registry), a.Logger).Routes())
		})

		r.NotFound(errorHandler.NotFound)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) healthChecks() map[string]handlers.Check {
	return map[string]handlers.Check{
		"database": a.Components.Source.Ping,
		"templates": func(context.Context) error {
			return a.Components.Registry.CheckTemplates()
		},
		"run_store": func(ctx context.Context) error {
			_, err := a.Components.Store.List(ctx, operations.RunFilter{Limit: 1})
			return err
		},
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  2 * a.Config.Server.ReadTimeout,
	}
}

// Start starts the background services and the HTTP server. A server error
// cancels the application context through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.WebSocketHub.Start()

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return err
		}
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", a.Server.Addr),
		slog.Bool("scheduler", a.Scheduler != nil))
	return nil
}

// Stop gracefully stops the application. Active runs are cancelled and
// given the shutdown timeout to record their final state.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if err := a.Components.Manager.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error cancelling runs", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.WebSocketHub.Stop()

	if err := a.Components.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close components: %w", err))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Application context cancelled")
	}

	return a.Stop(ctx)
}
