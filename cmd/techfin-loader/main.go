package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/config"
	dbpostgres "github.com/Bugs-BugsBunny/TechFin-Bot/internal/database/postgres"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/loader"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	s3store "github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage/s3"
)

func main() {
	csvPath := flag.String("csv", loader.DefaultCSVPath, "path to the stock price CSV")
	skipDB := flag.Bool("skip-db", false, "do not load rows into Postgres")
	export := flag.Bool("export", false, "write a Parquet snapshot to the object store")
	flag.Parse()

	cfg, err := config.LoadFromEnv("techfin-loader")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *csvPath, !*skipDB, *export); err != nil {
		logger.Error("load failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, csvPath string, loadDB, export bool) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ds, err := loader.ReadCSV(f)
	if err != nil {
		return err
	}
	logger.Info("dataset read",
		slog.String("path", csvPath),
		slog.Int("rows", len(ds.Rows)),
		slog.Int("filtered", ds.Filtered),
		slog.Int("skipped", ds.Skipped),
	)

	if loadDB {
		db, err := dbpostgres.Open(ctx, dbpostgres.ConfigFrom(cfg.Database))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		inserted, err := loader.LoadPostgres(ctx, db, ds)
		if err != nil {
			return err
		}
		logger.Info("rows loaded into postgres", slog.Int64("rows", inserted))
	}

	if export {
		store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return err
		}
		key := cfg.Store.SnapshotKey
		if key == "" {
			key = loader.DefaultSnapshotKey
		}
		info, result, err := loader.ExportSnapshot(ctx, store, key, ds)
		if err != nil {
			return err
		}
		logger.Info("snapshot exported",
			slog.String("key", info.Key),
			slog.Int64("size_bytes", info.Size),
			slog.Int64("records", result.RecordCount),
		)
	}
	return nil
}
