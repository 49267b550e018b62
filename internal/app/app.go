// Package app wires the configured components into a running intake pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/docintake/internal/async"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/compliance"
	"github.com/joseph-ayodele/docintake/internal/export"
	"github.com/joseph-ayodele/docintake/internal/extraction"
	"github.com/joseph-ayodele/docintake/internal/extraction/registry"
	"github.com/joseph-ayodele/docintake/internal/ingest"
	"github.com/joseph-ayodele/docintake/internal/kv"
	"github.com/joseph-ayodele/docintake/internal/ocr"
	"github.com/joseph-ayodele/docintake/internal/pipeline"
	"github.com/joseph-ayodele/docintake/internal/repository"
	"github.com/joseph-ayodele/docintake/internal/server"
	"github.com/joseph-ayodele/docintake/internal/storage"
)

// NewLogger returns a text logger. quiet drops time and level for daemon output collected by a supervisor.
func NewLogger(quiet bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(lvl)); err == nil {
			opts.Level = l
		}
	}
	if quiet {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

// InMemory points cfg at a private SQLite database, the in-memory TTL store and a temp
// directory, for local runs without Postgres or Redis.
func InMemory(cfg *common.Config) error {
	dir, err := os.MkdirTemp("", "docintake-*")
	if err != nil {
		return fmt.Errorf("temp storage dir: %w", err)
	}
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.Redis.Addr = ""
	cfg.Storage.Backend = "fs"
	cfg.Storage.Root = dir
	return nil
}

// App holds every wired component. Fields are nil when the binary did not ask for them.
type App struct {
	Config *common.Config
	Logger *slog.Logger

	DB   *entsql.Driver
	pool *pgxpool.Pool

	KV      kv.Store
	redis   *kv.RedisStore
	Objects storage.ObjectStore
	gcs     *storage.GCSStore

	Jobs       repository.JobRepository
	Compliance *repository.ComplianceRepository

	OCR       *ocr.Orchestrator
	Extractor *extraction.Engine
	Matcher   *compliance.Matcher
	Machine   *pipeline.Machine
	Queue     *async.ProcessorQueue
	Ingest    *ingest.Service
	Export    *export.Service
}

// OpenStore connects the database and runs migrations, seeding the master catalog when configured.
func OpenStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	drv, pool, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.DB, a.pool = drv, pool
	a.Jobs = repository.NewJobRepository(drv, logger)
	a.Compliance = repository.NewComplianceRepository(drv, logger)
	if cfg.Compliance.SeedMasterAssets {
		if err := a.Compliance.SeedAssets(ctx, "", compliance.MasterAssets); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Export = export.NewService(a.Jobs, logger)
	return a, nil
}

// New wires the full pipeline: storage, TTL store, OCR, extraction, matcher, state machine,
// worker queue and intake.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	a, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	if cfg.Redis.Addr != "" {
		rs, err := kv.NewRedisStore(ctx, kv.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			return err
		}
		a.redis = rs
		a.KV = rs
		if cfg.Redis.Prefix != "" {
			a.KV = kv.NewScoped(rs, cfg.Redis.Prefix)
		}
	} else {
		logger.Warn("REDIS_ADDR not set; using the in-memory ttl store")
		a.KV = kv.NewMemoryStore()
	}

	switch cfg.Storage.Backend {
	case "gcs":
		g, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket, logger)
		if err != nil {
			return err
		}
		a.gcs = g
		a.Objects = g
	default:
		fs, err := storage.NewFSStore(cfg.Storage.Root, logger)
		if err != nil {
			return err
		}
		a.Objects = fs
	}

	orch, err := ocr.NewFromConfig(ctx, cfg.OCR, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	a.OCR = orch.WithCache(kv.NewScoped(a.KV, "ocr"))

	eng, err := registry.NewEngine(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	a.Extractor = eng

	a.Matcher = compliance.NewMatcher(a.Compliance, compliance.Options{
		Threshold: cfg.Compliance.MatchThreshold,
		LeadDays:  cfg.Compliance.ReminderLeadDays,
	}, logger)

	a.Machine = pipeline.NewMachine(a.Jobs, a.Objects, a.OCR, a.Extractor, a.Matcher, a.Compliance, pipeline.Options{
		StuckAfter:     cfg.Pipeline.StuckAfter,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)

	a.Queue = async.NewProcessorQueue(a.Machine, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)
	a.Machine.SetEnqueuer(a.Queue)

	a.Ingest = ingest.NewService(a.Machine, a.Queue,
		ingest.NewIdempotency(a.KV, cfg.Server.IdempotencyTTL),
		ingest.NewSessions(a.KV, cfg.Server.UploadTokenTTL),
		cfg.Server.MaxUploadBytes, logger)
	return nil
}

// Checks returns the readiness probes for the wired dependencies.
func (a *App) Checks() map[string]server.Check {
	checks := map[string]server.Check{
		"database": func(ctx context.Context) error {
			return server.PingDB(ctx, a.DB, a.Logger, 2*time.Second)
		},
	}
	if a.KV != nil {
		checks["kv"] = a.KV.Ping
	}
	if a.OCR != nil {
		checks["ocr"] = a.OCR.Probe
	}
	return checks
}

// Close drains the queue and releases connections.
func (a *App) Close() {
	if a.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		a.Queue.Shutdown(ctx)
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.Logger.Warn("close gcs client", "error", err)
		}
	}
	server.CloseDB(a.DB, a.pool, a.Logger)
}
