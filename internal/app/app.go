// Package app assembles the pipeline and its collaborators from
// configuration. Every binary builds its graph through here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/api"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/chart"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
	dbpostgres "github.com/Bugs-BugsBunny/TechFin-Bot/internal/database/postgres"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/history"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/llm"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/narrator"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/pipeline"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	duckdbengine "github.com/Bugs-BugsBunny/TechFin-Bot/internal/query/duckdb"
	pgexecutor "github.com/Bugs-BugsBunny/TechFin-Bot/internal/query/postgres"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
	s3store "github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage/s3"
)

// ErrMissingAPIKey is a startup fault when a generator is required.
var ErrMissingAPIKey = errors.New("text generation api key is required")

type Components struct {
	Config     config.Config
	Logger     *slog.Logger
	DB         *sql.DB
	Store      *s3store.Store
	Generator  llm.Generator
	Translator nl2sql.Translator
	Pipeline   *pipeline.Pipeline
	History    history.Recorder
	Retention  *history.RetentionService
	Readiness  api.ReadinessCheck
}

// Build wires every component. On error, whatever was opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Components{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Generator, err = NewGenerator(cfg.AI)
	if err != nil {
		return nil, err
	}
	if c.Generator == nil {
		logger.Warn("text generation client is not configured; questions will be answered with the initialization error")
	}

	if needsDatabase(cfg) {
		c.DB, err = dbpostgres.Open(ctx, dbpostgres.ConfigFrom(cfg.Database))
		if err != nil {
			return nil, err
		}
	}
	if needsObjectStore(cfg) {
		c.Store, err = s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
	}

	executor, err := NewExecutor(cfg, c.Store, logger)
	if err != nil {
		return nil, err
	}
	c.History, err = NewHistory(ctx, cfg.History, c.DB)
	if err != nil {
		return nil, err
	}
	c.Retention = &history.RetentionService{
		Recorder: c.History,
		Config:   history.RetentionConfig{Retention: cfg.History.Retention, Schedule: cfg.History.RetentionCron},
		Logger:   logger,
	}

	contract := schema.Default()
	c.Translator = nl2sql.NewGenerativeTranslator(c.Generator, contract, nl2sql.Options{
		Temperature: cfg.AI.SQLTemperature,
		Logger:      logger,
	})
	deps := pipeline.Dependencies{
		Translator: c.Translator,
		Executor:   executor,
		Renderer:   chart.NewRenderer(chart.Options{}),
		Narrator:   narrator.New(c.Generator, narrator.Options{Temperature: cfg.AI.NarrationTemperature, Logger: logger}),
		History:    c.History,
		Logger:     logger,
	}
	if cfg.ObjectStore.ChartArchive && c.Store != nil {
		deps.Archive = storage.NewChartArchive(c.Store)
	}
	c.Pipeline, err = pipeline.New(deps, pipeline.Options{MaxRequestLength: cfg.Pipeline.MaxRequestLength})
	if err != nil {
		return nil, err
	}

	checks := []api.ReadinessCheck{}
	if c.DB != nil {
		checks = append(checks, dbpostgres.PingCheck(c.DB))
	}
	if c.Store != nil {
		checks = append(checks, api.CheckObjectStoreConfig(cfg), c.Store.Ping)
	}
	c.Readiness = api.CombineReadinessChecks(checks...)
	return c, nil
}

// NewGenerator returns a nil generator, not an error, when no key is set and
// the generator is optional.
func NewGenerator(cfg config.AIConfig) (llm.Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		if cfg.Required {
			return nil, ErrMissingAPIKey
		}
		return nil, nil
	}
	switch cfg.Provider {
	case config.AIProviderGemini, "":
		gen, err := llm.NewGemini(llm.GeminiConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("initialize gemini client: %w", err)
		}
		return gen, nil
	case config.AIProviderOpenAI:
		gen, err := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("initialize openai client: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

func NewExecutor(cfg config.Config, store storage.ObjectStore, logger *slog.Logger) (query.Executor, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		return pgexecutor.NewExecutor(cfg.Database.ConnString(), pgexecutor.Options{Logger: logger}), nil
	case config.StoreBackendDuckDB:
		if store == nil {
			return nil, fmt.Errorf("duckdb backend requires an object store")
		}
		if err := storage.ValidateSnapshotKey(cfg.Store.SnapshotKey); err != nil {
			return nil, err
		}
		return duckdbengine.NewEngine(store, cfg.Store.SnapshotKey, duckdbengine.Options{Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func NewHistory(ctx context.Context, cfg config.HistoryConfig, db *sql.DB) (history.Recorder, error) {
	switch cfg.Backend {
	case config.HistoryBackendNone, "":
		return history.NewNoop(), nil
	case config.HistoryBackendPostgres:
		return history.NewPostgresRecorder(db)
	case config.HistoryBackendSQLite:
		return history.NewSQLiteRecorder(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}

// Close releases the handles Build opened.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Retention != nil {
		c.Retention.Stop()
	}
	if c.History != nil {
		errs = append(errs, c.History.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

func needsDatabase(cfg config.Config) bool {
	return cfg.Store.Backend == config.StoreBackendPostgres || cfg.History.Backend == config.HistoryBackendPostgres
}

func needsObjectStore(cfg config.Config) bool {
	return cfg.Store.Backend == config.StoreBackendDuckDB || cfg.ObjectStore.ChartArchive
}
