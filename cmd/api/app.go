package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"beautycity/internal/config"
	"beautycity/internal/database"
	"beautycity/internal/domain"
	"beautycity/internal/google"
	"beautycity/internal/logging"
	"beautycity/internal/metrics"
	"beautycity/internal/models"
	"beautycity/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds what every command needs: config, logger, timezone and the database.
type app struct {
	cfg      *config.Config
	logger   *zerolog.Logger
	location *time.Location
	db       *database.DB
	closer   io.Closer
}

func newApp(configPath string, component string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, component)

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		closeQuietly(closer)
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, location: loc, db: db, closer: closer}, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	closeQuietly(a.closer)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// syncCatalog loads the catalog file and upserts it into the database.
// A missing file is not an error: the database may already hold the catalog.
func (a *app) syncCatalog(ctx context.Context) (*config.Catalog, error) {
	path := os.Getenv("CATALOG_PATH")
	if path == "" {
		path = a.cfg.CatalogPath
	}
	if path == "" {
		a.logger.Warn().Msg("catalog_path is not set, using catalog from database")
		return nil, nil
	}

	catalog, err := config.LoadCatalog(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Warn().Str("catalog_path", path).Msg("catalog file not found, using catalog from database")
			return nil, nil
		}
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if err := a.db.SyncCatalog(ctx, catalog.Salons, catalog.Specialists, catalog.Procedures, catalog.Offerings, catalog.Shifts); err != nil {
		return nil, fmt.Errorf("sync catalog: %w", err)
	}

	a.logger.Info().
		Int("salons", len(catalog.Salons)).
		Int("specialists", len(catalog.Specialists)).
		Int("procedures", len(catalog.Procedures)).
		Int("shifts", len(catalog.Shifts)).
		Msg("catalog synced")
	return catalog, nil
}

func (a *app) initRedis(ctx context.Context) *redis.Client {
	if a.cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(a.cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		a.logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	a.logger.Info().Str("addr", a.cfg.Redis.Address).Msg("redis connected")
	return client
}

// initLocking prefers Redis so several API instances share admission locks and
// booking limits; without Redis both stay in process.
func (a *app) initLocking(client *redis.Client) (domain.Locker, domain.RateLimiter) {
	wait := a.cfg.Scheduling.LockWait()
	memLocker := repository.NewMemoryLocker(wait)
	memLimiter := repository.NewMemoryRateLimiter()
	if client == nil {
		return memLocker, memLimiter
	}

	locker := repository.NewFailoverLocker(repository.NewRedisLocker(client, models.AdmissionLockTTL, wait), memLocker, a.logger)
	limiter := repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(client), memLimiter, a.logger)
	return locker, limiter
}

func (a *app) initGoogleSheets(ctx context.Context) *google.SheetsService {
	g := a.cfg.Google
	if !g.Enabled() {
		return nil
	}

	if email, err := google.GetServiceAccountEmail(g.CredentialsFile); err == nil {
		a.logger.Info().Str("service_account", email).Msg("share the spreadsheet with this account")
	}

	sheets, err := google.NewSheetsService(ctx, g.CredentialsFile, g.SpreadsheetID, g.SheetName, a.location, logging.Component(a.logger, "sheets"))
	if err != nil {
		a.logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sheets.TestConnection(testCtx); err != nil {
		a.logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	a.logger.Info().Msg("google sheets connected")
	return sheets
}

func (a *app) startMetrics(ctx context.Context) {
	if !a.cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, a.cfg.Monitoring.PrometheusPort, a.logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// dateRange parses inclusive YYYY-MM-DD bounds into [from, to+1d).
func dateRange(fromStr, toStr string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(models.DateLayout, fromStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.ParseInLocation(models.DateLayout, toStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
	}
	to = to.AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("--from is after --to")
	}
	return from, to, nil
}
