// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ringdove/outcall/internal/config"
	"github.com/ringdove/outcall/internal/dispatch"
	"github.com/ringdove/outcall/internal/intake"
	"github.com/ringdove/outcall/internal/pkg/ctxlog"
	"github.com/ringdove/outcall/internal/pkg/httputil"
	"github.com/ringdove/outcall/internal/pkg/metrics"
	"github.com/ringdove/outcall/internal/pkg/postgres"
	"github.com/ringdove/outcall/internal/queue"
	queuepostgres "github.com/ringdove/outcall/internal/queue/postgres"
	"github.com/ringdove/outcall/internal/tenant"
	tenantpostgres "github.com/ringdove/outcall/internal/tenant/postgres"
	"github.com/ringdove/outcall/internal/vapi"
	"github.com/ringdove/outcall/internal/version"
	"github.com/ringdove/outcall/internal/webhook"
	webhookpostgres "github.com/ringdove/outcall/internal/webhook/postgres"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	loop          *dispatch.Loop
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	vapiClient, err := vapi.NewClient(vapi.Config{
		BaseURL:       cfg.Vapi.BaseURL,
		APIKey:        cfg.Vapi.APIKey,
		Timeout:       cfg.Vapi.Timeout,
		ListLimit:     cfg.Vapi.ListLimit,
		PlacementRate: cfg.Vapi.PlacementRate,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create call service client: %w", err)
	}

	tenantRepo := tenantpostgres.NewRepository(db)
	queueRepo := queuepostgres.NewRepository(db)
	reportRepo := webhookpostgres.NewRepository(db)

	loop := dispatch.NewLoop(dispatchConfig(cfg.Dispatch), tenantRepo, queueRepo, vapiClient)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
		loop:          loop,
	}

	go app.collectDBMetrics(metricsCtx)
	go app.collectQueueMetrics(metricsCtx, queueRepo)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(tenantRepo, queueRepo, reportRepo),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the dispatch loop and the HTTP servers.
func (a *App) Run() error {
	a.loop.Start(context.Background())

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. The dispatch loop stops
// first so no call is placed against a closing pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()
	a.loop.Stop()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Loop returns the dispatch loop instance. Used in tests.
func (a *App) Loop() *dispatch.Loop {
	return a.loop
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo queue.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.Stats(ctx)
			if err != nil {
				a.logger.Error("failed to get queue stats", "error", err)
				continue
			}
			dispatch.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) setupRouter(tenantRepo tenant.Repository, queueRepo queue.Repository, reportRepo webhook.Repository) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	intakeService := intake.NewService(tenantRepo, queueRepo, a.loop)
	intakeHandler := intake.NewHandler(intakeService)
	webhookHandler := webhook.NewHandler(reportRepo, tenantRepo, a.loop.Gate())

	r.Route("/api/v1", func(r chi.Router) {
		intakeHandler.RegisterRoutes(r)
		webhookHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func dispatchConfig(cfg config.DispatchConfig) dispatch.Config {
	out := dispatch.DefaultConfig()
	if cfg.Ceiling > 0 {
		out.Ceiling = cfg.Ceiling
	}
	if cfg.PassInterval > 0 {
		out.PassInterval = cfg.PassInterval
	}
	if cfg.BusyBackoff > 0 {
		out.BusyBackoff = cfg.BusyBackoff
	}
	if cfg.EmptyBackoff > 0 {
		out.EmptyBackoff = cfg.EmptyBackoff
	}
	if cfg.NotScheduledBackoff > 0 {
		out.NotScheduledBackoff = cfg.NotScheduledBackoff
	}
	if cfg.MisconfiguredBackoff > 0 {
		out.MisconfiguredBackoff = cfg.MisconfiguredBackoff
	}
	if cfg.ClaimRaceBackoff > 0 {
		out.ClaimRaceBackoff = cfg.ClaimRaceBackoff
	}
	if cfg.ErrorBackoff > 0 {
		out.ErrorBackoff = cfg.ErrorBackoff
	}
	return out
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
