package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/carecache/internal/analytics"
	"github.com/gmsas95/carecache/internal/api"
	"github.com/gmsas95/carecache/internal/chat"
	"github.com/gmsas95/carecache/internal/config"
	"github.com/gmsas95/carecache/internal/metrics"
	"github.com/gmsas95/carecache/internal/patient"
	"github.com/gmsas95/carecache/internal/persist"
	"github.com/gmsas95/carecache/internal/scheduler"
)

// App wires the stores to the backend client and the persistent store
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Storage   persist.Store
	Tokens    *api.StoredToken
	Client    *api.Client
	Patient   *patient.Cache
	Analytics *analytics.Store
	Chat      *chat.Session
	Runner    *scheduler.Runner
	Version   string

	metricsServer *http.Server
}

// New opens the configured storage backend and builds the app on it
func New(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	storage, err := persist.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return NewWithStorage(cfg, storage, logger, version), nil
}

// NewWithStorage builds the app on an already open store, which the app
// then owns
func NewWithStorage(cfg *config.Config, storage persist.Store, logger *zap.Logger, version string) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()

	tokens := api.NewStoredToken(storage, logger.Named("auth"))
	client := api.NewClient(cfg.API, tokens, logger.Named("api"))

	profiles := patient.NewCache(client, storage, cfg.Cache.ProfileTTL, logger.Named("patient"))
	profiles.SetMetrics(m)

	store := analytics.NewStore(client, analytics.Options{
		Window: analytics.TimeRange{
			IntensityDays:   cfg.Analytics.IntensityDays,
			FrequencyMonths: cfg.Analytics.FrequencyMonths,
		},
		AutoRefresh: cfg.Analytics.AutoRefresh,
		StaleAfter:  cfg.Analytics.StaleAfter,
		Debounce:    cfg.Analytics.Debounce,
	}, logger.Named("analytics"))
	store.SetMetrics(m)

	session := chat.NewSession(client, profiles, store, logger.Named("chat"))
	session.SetMetrics(m)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Storage:   storage,
		Tokens:    tokens,
		Client:    client,
		Patient:   profiles,
		Analytics: store,
		Chat:      session,
		Runner:    scheduler.NewRunner(logger.Named("scheduler")),
		Version:   version,
	}
}

// Start restores persisted state. Call before the first fetch.
func (app *App) Start(ctx context.Context) error {
	if err := app.Patient.Rehydrate(ctx); err != nil {
		app.Logger.Warn("Failed to rehydrate patient profile", zap.Error(err))
	}
	return nil
}

// PatientID returns the configured patient identity
func (app *App) PatientID() string {
	return app.Config.Patient.DefaultID
}

// RunDaemon registers the background jobs, follows config changes and
// blocks until SIGINT or SIGTERM
func (app *App) RunDaemon(configPath, dataDir string) error {
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	if err := RegisterJobs(app); err != nil {
		return err
	}
	if err := app.Runner.Start(); err != nil {
		return err
	}

	err := config.Watch(configPath, dataDir, app.ApplyConfig, func(err error) {
		app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
	})
	switch {
	case errors.Is(err, config.ErrNoConfigFile):
		app.Logger.Info("No config file to watch")
	case err != nil:
		app.Logger.Warn("Failed to watch config", zap.Error(err))
	}

	if addr := app.Config.Metrics.Address; addr != "" {
		app.ServeMetrics(addr, app.Config.Metrics.Path)
	}

	for _, name := range app.Runner.JobNames() {
		if err := app.Runner.RunNow(name); err != nil {
			app.Logger.Warn("Initial job run failed", zap.String("job", name), zap.Error(err))
		}
	}

	app.Logger.Info("Background sync started",
		zap.String("base_url", app.Config.API.BaseURL),
		zap.Strings("jobs", app.Runner.JobNames()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")
	return app.Close()
}

// ApplyConfig applies the settings that may change at runtime
func (app *App) ApplyConfig(cfg *config.Config) {
	app.Analytics.SetAutoRefresh(cfg.Analytics.AutoRefresh)
	window := analytics.TimeRange{
		IntensityDays:   cfg.Analytics.IntensityDays,
		FrequencyMonths: cfg.Analytics.FrequencyMonths,
	}
	if window != app.Analytics.TimeRange() {
		app.Analytics.SetTimeRange(window.IntensityDays, window.FrequencyMonths)
	}
	app.Logger.Info("Configuration reloaded",
		zap.Bool("auto_refresh", cfg.Analytics.AutoRefresh),
		zap.Int("intensity_days", cfg.Analytics.IntensityDays),
		zap.Int("frequency_months", cfg.Analytics.FrequencyMonths),
	)
}

// ServeMetrics exposes the Prometheus registry on addr in the background
func (app *App) ServeMetrics(addr, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, app.Metrics.Handler())
	app.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		app.Logger.Info("Serving metrics", zap.String("addr", addr), zap.String("path", path))
		if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// Logout forgets the patient: cached profile, chat history and token
func (app *App) Logout(ctx context.Context) error {
	app.Chat.ClearSession()
	var errs []error
	if err := app.Patient.Invalidate(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := app.Tokens.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear token: %w", err))
	}
	app.Logger.Info("Logged out")
	return errors.Join(errs...)
}

// Close stops background work and closes storage
func (app *App) Close() error {
	if app.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.Logger.Warn("Metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}
	app.Runner.Stop()
	app.Analytics.Close()
	return app.Storage.Close()
}
