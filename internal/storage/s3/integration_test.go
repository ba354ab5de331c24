//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/loader"
	duckdbengine "github.com/Bugs-BugsBunny/TechFin-Bot/internal/query/duckdb"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	cfg := integrationConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := []byte("\x89PNG-integration")
	key, err := storage.NewChartArchive(store).SaveChart(ctx, "integration-trace", payload)
	if err != nil {
		t.Fatalf("SaveChart() error = %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("reader.Close() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(readPayload), string(payload))
	}

	if _, err := store.Get(ctx, "charts/date=1999-01-01/absent.png"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() missing error = %v, want ErrObjectNotFound", err)
	}
}

func TestSnapshotExportIsQueryableThroughDuckDB(t *testing.T) {
	cfg := integrationConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ds, err := loader.ReadCSV(strings.NewReader(`Date,Close,Brand_Name,Ticker,Industry_Tag
2024-03-04 00:00:00-05:00,175.10,apple,AAPL,technology
2024-03-01 00:00:00-05:00,179.66,apple,AAPL,technology
2024-03-01 00:00:00-05:00,415.50,microsoft,MSFT,technology
`))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	key := "snapshots/integration.parquet"
	if _, _, err := loader.ExportSnapshot(ctx, store, key, ds); err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}

	engine := duckdbengine.NewEngine(store, key, duckdbengine.Options{})
	result, err := engine.Execute(ctx, "SELECT date, close FROM stock_data WHERE ticker = 'AAPL' ORDER BY date;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.ColumnIndex("close") != 1 {
		t.Fatalf("columns = %v", result.Columns)
	}
}

func integrationConfig(t *testing.T) Config {
	t.Helper()
	endpoint := envOr("TECHFIN_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("TECHFIN_TEST_S3_ENDPOINT is not set")
	}
	return Config{
		Endpoint:         endpoint,
		Region:           envOr("TECHFIN_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("TECHFIN_TEST_S3_BUCKET", "techfin-it"),
		AccessKeyID:      envOr("TECHFIN_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("TECHFIN_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
