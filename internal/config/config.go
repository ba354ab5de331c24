package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendDuckDB   = "duckdb"

	AIProviderGemini = "gemini"
	AIProviderOpenAI = "openai"

	HistoryBackendPostgres = "postgres"
	HistoryBackendSQLite   = "sqlite"
	HistoryBackendNone     = "none"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Store         StoreConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Telegram      TelegramConfig
	History       HistoryConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig keeps the discrete DB_* settings; DSN wins when set.
type DatabaseConfig struct {
	Name            string
	User            string
	Password        string
	Host            string
	Port            int
	SSLMode         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type StoreConfig struct {
	Backend     string
	SnapshotKey string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	ChartArchive     bool
}

type AIConfig struct {
	Provider             string
	Required             bool
	BaseURL              string
	APIKey               string
	Model                string
	SQLTemperature       float64
	NarrationTemperature float64
	Timeout              time.Duration
}

type PipelineConfig struct {
	MaxRequestLength int
}

type TelegramConfig struct {
	Token       string
	BaseURL     string
	PollTimeout time.Duration
	SendRetries int
	MaxInFlight int
}

type HistoryConfig struct {
	Backend       string
	SQLitePath    string
	Retention     time.Duration
	RetentionCron string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("TECHFIN_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TECHFIN_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if raw, ok := lookup("TECHFIN_CONFIG_FILE"); ok && strings.TrimSpace(raw) != "" {
		if err := applyFile(strings.TrimSpace(raw), &cfg); err != nil {
			return Config{}, err
		}
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "TECHFIN_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "TECHFIN_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "TECHFIN_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "TECHFIN_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "TECHFIN_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },

		func() error { return applyString(lookup, "DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "TECHFIN_DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyString(lookup, "TECHFIN_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyInt(lookup, "TECHFIN_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "TECHFIN_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "TECHFIN_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "TECHFIN_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},

		func() error { return applyString(lookup, "TECHFIN_STORE_BACKEND", &cfg.Store.Backend) },
		func() error { return applyString(lookup, "TECHFIN_SNAPSHOT_KEY", &cfg.Store.SnapshotKey) },

		func() error { return applyString(lookup, "TECHFIN_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "TECHFIN_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "TECHFIN_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "TECHFIN_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "TECHFIN_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "TECHFIN_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "TECHFIN_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "TECHFIN_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "TECHFIN_CHART_ARCHIVE_ENABLED", &cfg.ObjectStore.ChartArchive) },

		func() error { return applyString(lookup, "TECHFIN_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyBool(lookup, "TECHFIN_AI_REQUIRED", &cfg.AI.Required) },
		func() error { return applyString(lookup, "TECHFIN_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "GEMINI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "TECHFIN_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "TECHFIN_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "TECHFIN_AI_SQL_TEMPERATURE", &cfg.AI.SQLTemperature) },
		func() error {
			return applyFloat(lookup, "TECHFIN_AI_NARRATION_TEMPERATURE", &cfg.AI.NarrationTemperature)
		},
		func() error { return applyDuration(lookup, "TECHFIN_AI_TIMEOUT", &cfg.AI.Timeout) },

		func() error { return applyInt(lookup, "TECHFIN_MAX_REQUEST_LENGTH", &cfg.Pipeline.MaxRequestLength) },

		func() error { return applyString(lookup, "TELEGRAM_TOKEN", &cfg.Telegram.Token) },
		func() error { return applyString(lookup, "TECHFIN_TELEGRAM_BASE_URL", &cfg.Telegram.BaseURL) },
		func() error { return applyDuration(lookup, "TECHFIN_TELEGRAM_POLL_TIMEOUT", &cfg.Telegram.PollTimeout) },
		func() error { return applyInt(lookup, "TECHFIN_TELEGRAM_SEND_RETRIES", &cfg.Telegram.SendRetries) },
		func() error { return applyInt(lookup, "TECHFIN_TELEGRAM_MAX_IN_FLIGHT", &cfg.Telegram.MaxInFlight) },

		func() error { return applyString(lookup, "TECHFIN_HISTORY_BACKEND", &cfg.History.Backend) },
		func() error { return applyString(lookup, "TECHFIN_HISTORY_SQLITE_PATH", &cfg.History.SQLitePath) },
		func() error { return applyDuration(lookup, "TECHFIN_HISTORY_RETENTION", &cfg.History.Retention) },
		func() error { return applyString(lookup, "TECHFIN_HISTORY_RETENTION_CRON", &cfg.History.RetentionCron) },

		func() error { return applyBool(lookup, "TECHFIN_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "TECHFIN_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.History.Backend = strings.ToLower(cfg.History.Backend)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConnString returns the explicit DSN or one assembled from the discrete DB_* settings.
func (c DatabaseConfig) ConnString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return strings.TrimSpace(c.DSN)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Store.Backend {
	case StoreBackendPostgres, StoreBackendDuckDB:
	default:
		return fmt.Errorf("invalid TECHFIN_STORE_BACKEND: %q", cfg.Store.Backend)
	}
	switch cfg.AI.Provider {
	case AIProviderGemini, AIProviderOpenAI:
	default:
		return fmt.Errorf("invalid TECHFIN_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	switch cfg.History.Backend {
	case HistoryBackendPostgres, HistoryBackendSQLite, HistoryBackendNone:
	default:
		return fmt.Errorf("invalid TECHFIN_HISTORY_BACKEND: %q", cfg.History.Backend)
	}
	if cfg.Pipeline.MaxRequestLength <= 0 {
		return fmt.Errorf("max request length must be positive")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid DB_PORT: %d", cfg.Database.Port)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "techfin-bot"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Name:            "postgres",
			User:            "postgres",
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Store: StoreConfig{
			Backend:     StoreBackendPostgres,
			SnapshotKey: "snapshots/stock_data.parquet",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "techfin",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
			ChartArchive:     false,
		},
		AI: AIConfig{
			Provider:             AIProviderGemini,
			Required:             false,
			BaseURL:              "",
			Model:                "",
			SQLTemperature:       0,
			NarrationTemperature: 0.5,
			Timeout:              30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxRequestLength: 150,
		},
		Telegram: TelegramConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: 30 * time.Second,
			SendRetries: 2,
			MaxInFlight: 16,
		},
		History: HistoryConfig{
			Backend:       HistoryBackendNone,
			SQLitePath:    "techfin-history.db",
			Retention:     30 * 24 * time.Hour,
			RetentionCron: "@daily",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.AI.Required = true
		cfg.Database.SSLMode = "require"
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.History.Backend = HistoryBackendPostgres
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
