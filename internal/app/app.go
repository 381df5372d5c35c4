package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"PriceAggregator/internal/config"
	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/infrastructure/scheduler"
	"PriceAggregator/internal/infrastructure/scraper"
	"PriceAggregator/internal/infrastructure/storage"
	"PriceAggregator/internal/infrastructure/telegram"
	"PriceAggregator/internal/logging"
	"PriceAggregator/internal/orchestrator"
	"PriceAggregator/internal/ports"
	"PriceAggregator/internal/store"
	"PriceAggregator/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *store.Registry
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	db        *sql.DB
}

// New builds a runnable application instance from configuration. Postgres
// and Telegram are only wired when their settings are present.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	mode, err := orchestrator.ParseMode(cfg.Aggregation.Mode)
	if err != nil {
		return nil, err
	}

	registry := store.NewRegistry()
	for _, sc := range cfg.Stores {
		plugin := scraper.NewHTMLStore(sc, nil, baseLogger.With("component", "store."+sc.ID))
		if err := registry.Register(sc.ID, plugin); err != nil {
			return nil, fmt.Errorf("register store %s: %w", sc.ID, err)
		}
	}

	a := &Application{cfg: cfg, logger: baseLogger, registry: registry}

	var repo ports.ResultRepository
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		pg := storage.NewPostgresRepository(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		repo = pg
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	types := make([]domain.ProductType, 0, len(cfg.Aggregation.Types))
	for _, t := range cfg.Aggregation.Types {
		types = append(types, domain.ProductType(t))
	}

	aggregator := usecase.NewAggregator(registry, usecase.AggregatorOptions{
		GracePeriod: cfg.Aggregation.GracePeriod,
		Logger:      baseLogger.With("component", "orchestrator"),
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Aggregator: aggregator,
		Request: usecase.Request{
			Types:       types,
			Mode:        mode,
			Concurrency: cfg.Aggregation.Concurrency,
		},
		Repository: repo,
		Notifier:   notifier,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location())
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, baseLogger.With("component", "scheduler"))

	baseLogger.Debug("application wired",
		"stores", len(cfg.Stores),
		"persistence", repo != nil,
		"notifications", notifier != nil,
	)
	return a, nil
}

// Stores lists the registered store ids in registration order.
func (a *Application) Stores() []string {
	plugins := a.registry.Plugins()
	ids := make([]string, 0, len(plugins))
	for _, p := range plugins {
		ids = append(ids, p.ID)
	}
	return ids
}

// RunOnce performs a single aggregation run.
func (a *Application) RunOnce(ctx context.Context) (ports.Run, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.Process(ctx, now)
}

// Serve runs the pipeline on the configured interval until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval", a.cfg.Scheduler.Interval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Close releases the database handle, if any.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
