package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beautycity/internal/api"
	"beautycity/internal/database"
	"beautycity/internal/domain"
	"beautycity/internal/events"
	"beautycity/internal/export"
	"beautycity/internal/logging"
	"beautycity/internal/models"
	"beautycity/internal/notify"
	"beautycity/internal/repository"
	"beautycity/internal/schedule"
	"beautycity/internal/service"
	"beautycity/internal/worker"

	"github.com/spf13/cobra"
)

const healthCheckInterval = 15 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC API with background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	a, err := newApp(configPath, "api-main")
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.syncCatalog(ctx); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := a.initRedis(ctx)
	defer func() { _ = repository.Close(redisClient) }()
	locker, bookingLimiter := a.initLocking(redisClient)

	eventBus := events.NewEventBus(logging.Component(logger, "events"))

	// Журнал записей в Google Sheets
	var syncWorker domain.SyncWorker
	sheets := a.initGoogleSheets(ctx)
	if sheets != nil {
		w := worker.NewSheetsWorker(a.db, sheets, redisClient, worker.RetryPolicy{}, logging.Component(logger, "sheets-worker"))
		go w.Start(ctx)
		go sheets.StartCacheRefresh(ctx, time.Duration(models.SheetsCacheTTL)*time.Second)
		syncWorker = w
	}

	if cfg.Telegram.Enabled() {
		sender, err := notify.NewBotSender(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			notifier := notify.NewNotifier(sender, a.db, cfg.Telegram.ManagerChatIDs, a.location, logging.Component(logger, "notify"))
			notifier.Subscribe(eventBus)
			go notifier.Start(ctx)
		}
	}

	engine := schedule.NewEngine(a.db, a.db, schedule.Config{
		Step:     cfg.Scheduling.SlotStep(),
		Location: a.location,
	}, logging.Component(logger, "slots"))

	booking := service.NewBookingService(
		a.db,
		engine,
		locker,
		service.SystemClock{},
		eventBus,
		syncWorker,
		cfg.Scheduling.MaxBookingDays,
		logging.Component(logger, "booking"),
	)

	backup := database.NewBackupService(a.db, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	a.startMetrics(ctx)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, a.db, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		if redisClient != nil {
			grpcServer.AddOptionalCheck(api.HealthServiceName+".redis", api.PingerFunc(func(ctx context.Context) error {
				return repository.Ping(ctx, redisClient)
			}))
		}
		if sheets != nil {
			grpcServer.AddOptionalCheck(api.HealthServiceName+".journal", api.PingerFunc(sheets.TestConnection))
		}
		go grpcServer.WatchHealth(ctx, healthCheckInterval)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(&cfg.API, api.HTTPDeps{
			Booking:        booking,
			Catalog:        a.db,
			Exporter:       export.NewExporter(a.db, a.location, cfg.Exports.Path, logging.Component(logger, "export")),
			BookingLimiter: bookingLimiter,
			DB:             a.db,
			Location:       a.location,
		}, logging.Component(logger, "http"))
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Bool("http", httpServer != nil).
		Str("timezone", a.location.String()).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func newSyncCatalogCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-catalog",
		Short: "Load salons, specialists, procedures and shifts from the catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, "sync-catalog")
			if err != nil {
				return err
			}
			defer a.Close()

			catalog, err := a.syncCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if catalog == nil {
				return fmt.Errorf("no catalog file to sync")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d salons, %d specialists, %d procedures, %d shifts\n",
				len(catalog.Salons), len(catalog.Specialists), len(catalog.Procedures), len(catalog.Shifts))
			return nil
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an xlsx report of appointments for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, "export")
			if err != nil {
				return err
			}
			defer a.Close()

			from, to, err := dateRange(fromStr, toStr, a.location)
			if err != nil {
				return err
			}

			appts, err := a.db.ListAppointments(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			exporter := export.NewExporter(a.db, a.location, a.cfg.Exports.Path, a.logger)
			path, err := exporter.SaveFile(cmd.Context(), from, to, appts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	today := time.Now().Format(models.DateLayout)
	cmd.Flags().StringVar(&fromStr, "from", today, "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", today, "last day (inclusive), YYYY-MM-DD")
	return cmd
}

func newBackupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Take a database snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, "backup")
			if err != nil {
				return err
			}
			defer a.Close()

			backup := database.NewBackupService(a.db, a.cfg.Backup, a.logger)
			path, err := backup.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			backup.CleanupOldBackups()
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newSheetsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Maintain the Google Sheets appointment journal",
	}
	cmd.AddCommand(newSheetsCheckCmd(configPath))
	cmd.AddCommand(newSheetsResyncCmd(configPath))
	return cmd
}

func newSheetsCheckCmd(configPath *string) *cobra.Command {
	var requeue bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test the spreadsheet connection and list failed journal tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, "sheets")
			if err != nil {
				return err
			}
			defer a.Close()

			if a.initGoogleSheets(cmd.Context()) == nil {
				return fmt.Errorf("google sheets is not configured or not reachable")
			}

			failed, err := a.db.GetFailedSyncTasks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connection ok, %d failed tasks\n", len(failed))
			for _, t := range failed {
				lastErr := ""
				if t.LastError != nil {
					lastErr = *t.LastError
				}
				fmt.Fprintf(out, "  #%d %s appointment=%d retries=%d: %s\n", t.ID, t.TaskType, t.AppointmentID, t.RetryCount, lastErr)
			}

			if requeue && len(failed) > 0 {
				n, err := a.db.RequeueFailedSyncTasks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "requeued %d tasks, a running server picks them up on its next poll\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue", false, "reset failed tasks to pending")
	return cmd
}

func newSheetsResyncCmd(configPath *string) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rewrite the journal from the database for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, "sheets")
			if err != nil {
				return err
			}
			defer a.Close()

			from, to, err := dateRange(fromStr, toStr, a.location)
			if err != nil {
				return err
			}

			sheets := a.initGoogleSheets(cmd.Context())
			if sheets == nil {
				return fmt.Errorf("google sheets is not configured or not reachable")
			}

			appts, err := a.db.ListAppointments(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if err := sheets.EnsureHeader(cmd.Context()); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			if err := sheets.ReplaceAppointments(cmd.Context(), appts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "journal rewritten with %d appointments\n", len(appts))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "last day (inclusive), YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
