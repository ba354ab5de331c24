package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of settings that may live in a YAML file.
// Environment variables are applied afterwards and win.
type fileConfig struct {
	HTTP struct {
		Address string `yaml:"address"`
	} `yaml:"http"`
	Database struct {
		Name    string `yaml:"name"`
		User    string `yaml:"user"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		SSLMode string `yaml:"sslmode"`
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`
	Store struct {
		Backend     string `yaml:"backend"`
		SnapshotKey string `yaml:"snapshot_key"`
	} `yaml:"store"`
	ObjectStore struct {
		Endpoint     string `yaml:"endpoint"`
		Region       string `yaml:"region"`
		Bucket       string `yaml:"bucket"`
		Prefix       string `yaml:"prefix"`
		UseSSL       *bool  `yaml:"use_ssl"`
		ChartArchive *bool  `yaml:"chart_archive"`
	} `yaml:"object_store"`
	AI struct {
		Provider             string   `yaml:"provider"`
		BaseURL              string   `yaml:"base_url"`
		Model                string   `yaml:"model"`
		SQLTemperature       *float64 `yaml:"sql_temperature"`
		NarrationTemperature *float64 `yaml:"narration_temperature"`
		Timeout              string   `yaml:"timeout"`
	} `yaml:"ai"`
	Pipeline struct {
		MaxRequestLength int `yaml:"max_request_length"`
	} `yaml:"pipeline"`
	History struct {
		Backend       string `yaml:"backend"`
		SQLitePath    string `yaml:"sqlite_path"`
		Retention     string `yaml:"retention"`
		RetentionCron string `yaml:"retention_cron"`
	} `yaml:"history"`
	Log struct {
		Level string `yaml:"level"`
		JSON  *bool  `yaml:"json"`
	} `yaml:"log"`
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return file.apply(cfg)
}

func (f fileConfig) apply(cfg *Config) error {
	setString(&cfg.HTTP.Address, f.HTTP.Address)

	setString(&cfg.Database.Name, f.Database.Name)
	setString(&cfg.Database.User, f.Database.User)
	setString(&cfg.Database.Host, f.Database.Host)
	setString(&cfg.Database.SSLMode, f.Database.SSLMode)
	setString(&cfg.Database.DSN, f.Database.DSN)
	if f.Database.Port > 0 {
		cfg.Database.Port = f.Database.Port
	}

	setString(&cfg.Store.Backend, f.Store.Backend)
	setString(&cfg.Store.SnapshotKey, f.Store.SnapshotKey)

	setString(&cfg.ObjectStore.Endpoint, f.ObjectStore.Endpoint)
	setString(&cfg.ObjectStore.Region, f.ObjectStore.Region)
	setString(&cfg.ObjectStore.Bucket, f.ObjectStore.Bucket)
	setString(&cfg.ObjectStore.Prefix, f.ObjectStore.Prefix)
	if f.ObjectStore.UseSSL != nil {
		cfg.ObjectStore.UseSSL = *f.ObjectStore.UseSSL
	}
	if f.ObjectStore.ChartArchive != nil {
		cfg.ObjectStore.ChartArchive = *f.ObjectStore.ChartArchive
	}

	setString(&cfg.AI.Provider, f.AI.Provider)
	setString(&cfg.AI.BaseURL, f.AI.BaseURL)
	setString(&cfg.AI.Model, f.AI.Model)
	if f.AI.SQLTemperature != nil {
		cfg.AI.SQLTemperature = *f.AI.SQLTemperature
	}
	if f.AI.NarrationTemperature != nil {
		cfg.AI.NarrationTemperature = *f.AI.NarrationTemperature
	}
	if err := setDuration(&cfg.AI.Timeout, "ai.timeout", f.AI.Timeout); err != nil {
		return err
	}

	if f.Pipeline.MaxRequestLength > 0 {
		cfg.Pipeline.MaxRequestLength = f.Pipeline.MaxRequestLength
	}

	setString(&cfg.History.Backend, f.History.Backend)
	setString(&cfg.History.SQLitePath, f.History.SQLitePath)
	setString(&cfg.History.RetentionCron, f.History.RetentionCron)
	if err := setDuration(&cfg.History.Retention, "history.retention", f.History.Retention); err != nil {
		return err
	}

	if f.Log.Level != "" {
		level, err := parseLogLevel(f.Log.Level)
		if err != nil {
			return fmt.Errorf("invalid log.level: %w", err)
		}
		cfg.Observability.LogLevel = level
	}
	if f.Log.JSON != nil {
		cfg.Observability.LogJSON = *f.Log.JSON
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = value
	return nil
}
