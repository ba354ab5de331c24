package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/history"
	duckdbengine "github.com/Bugs-BugsBunny/TechFin-Bot/internal/query/duckdb"
	pgexecutor "github.com/Bugs-BugsBunny/TechFin-Bot/internal/query/postgres"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
)

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("techfin-test", func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestNewGeneratorWithoutKey(t *testing.T) {
	gen, err := NewGenerator(config.AIConfig{Provider: config.AIProviderGemini})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if gen != nil {
		t.Fatalf("NewGenerator() = %#v, want nil", gen)
	}

	_, err = NewGenerator(config.AIConfig{Provider: config.AIProviderGemini, Required: true})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("NewGenerator() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewGeneratorSelectsProvider(t *testing.T) {
	cases := map[string]string{
		config.AIProviderGemini: "gemini",
		config.AIProviderOpenAI: "openai-compatible",
	}
	for provider, want := range cases {
		gen, err := NewGenerator(config.AIConfig{Provider: provider, APIKey: "key"})
		if err != nil {
			t.Fatalf("NewGenerator(%s) error = %v", provider, err)
		}
		if gen.Provider() != want {
			t.Fatalf("Provider() = %q, want %q", gen.Provider(), want)
		}
	}
	if _, err := NewGenerator(config.AIConfig{Provider: "other", APIKey: "key"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewExecutorSelectsBackend(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	cfg.Store.Backend = config.StoreBackendPostgres
	executor, err := NewExecutor(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewExecutor(postgres) error = %v", err)
	}
	if _, ok := executor.(*pgexecutor.Executor); !ok {
		t.Fatalf("executor = %T", executor)
	}

	cfg.Store.Backend = config.StoreBackendDuckDB
	if _, err := NewExecutor(cfg, nil, nil); err == nil {
		t.Fatal("expected error for duckdb without object store")
	}
	var store storage.ObjectStore = nopStore{}
	executor, err = NewExecutor(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewExecutor(duckdb) error = %v", err)
	}
	if _, ok := executor.(*duckdbengine.Engine); !ok {
		t.Fatalf("executor = %T", executor)
	}
}

func TestNewHistoryBackends(t *testing.T) {
	ctx := context.Background()
	recorder, err := NewHistory(ctx, config.HistoryConfig{Backend: config.HistoryBackendNone}, nil)
	if err != nil {
		t.Fatalf("NewHistory(none) error = %v", err)
	}
	if _, ok := recorder.(*history.Noop); !ok {
		t.Fatalf("recorder = %T", recorder)
	}

	if _, err := NewHistory(ctx, config.HistoryConfig{Backend: config.HistoryBackendPostgres}, nil); err == nil {
		t.Fatal("expected error for postgres history without a database")
	}

	path := filepath.Join(t.TempDir(), "history.db")
	recorder, err = NewHistory(ctx, config.HistoryConfig{Backend: config.HistoryBackendSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("NewHistory(sqlite) error = %v", err)
	}
	defer func() { _ = recorder.Close() }()
	if _, ok := recorder.(*history.SQLiteRecorder); !ok {
		t.Fatalf("recorder = %T", recorder)
	}
}

func TestDependencyNeedsFollowBackends(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"TECHFIN_STORE_BACKEND":   "postgres",
		"TECHFIN_HISTORY_BACKEND": "none",
	})
	if needsObjectStore(cfg) {
		t.Fatal("default config should not need an object store")
	}
	if !needsDatabase(cfg) {
		t.Fatal("postgres backend should need a database")
	}
}

type nopStore struct{ storage.ObjectStore }
