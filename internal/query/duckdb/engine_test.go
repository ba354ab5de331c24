package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/loader"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
)

const snapshotKey = "snapshots/stock_data.parquet"

func TestExecuteReadsSnapshotThroughObjectStore(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{snapshotKey: buildSnapshot(t)}}
	engine := NewEngine(store, snapshotKey, Options{})

	result, err := engine.Execute(context.Background(),
		"SELECT date, close FROM stock_data WHERE ticker = 'AAPL' AND date BETWEEN '2024-03-01' AND '2024-03-31' ORDER BY date ASC;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Columns[0] != "date" || result.Columns[1] != "close" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if result.Rows[0][1] != 179.66 {
		t.Fatalf("first close = %#v", result.Rows[0][1])
	}
}

func TestExecuteIncludesEndDateOfLoadedSnapshot(t *testing.T) {
	input := `Date,Close,Brand_Name,Ticker,Industry_Tag
2024-03-14 00:00:00-04:00,170.0,apple,AAPL,technology
2024-03-15 00:00:00-04:00,172.5,apple,AAPL,technology
2024-03-18 00:00:00-04:00,173.7,apple,AAPL,technology
`
	ds, err := loader.ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	encoded, err := loader.EncodeStockRowsToParquet(ds.StockRows())
	if err != nil {
		t.Fatalf("EncodeStockRowsToParquet() error = %v", err)
	}
	store := &memoryStore{objects: map[string][]byte{snapshotKey: encoded.Data}}

	result, err := NewEngine(store, snapshotKey, Options{}).Execute(context.Background(),
		"SELECT date, close FROM stock_data WHERE ticker = 'AAPL' AND date BETWEEN '2024-03-01' AND '2024-03-15' ORDER BY date ASC")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %v, want the 14th and the 15th", result.Rows)
	}
	last, ok := result.Rows[1][0].(time.Time)
	if !ok || last.UTC().Format(schema.DateLayout) != "2024-03-15" {
		t.Fatalf("last date = %#v", result.Rows[1][0])
	}
	if result.Rows[1][1] != 172.5 {
		t.Fatalf("last close = %#v", result.Rows[1][1])
	}
}

func TestExecuteZeroRowsIsEmptyResult(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{snapshotKey: buildSnapshot(t)}}
	result, err := NewEngine(store, snapshotKey, Options{}).Execute(context.Background(),
		"SELECT date, close FROM stock_data WHERE ticker = 'NOPE'")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestExecuteClassifiesFailures(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{snapshotKey: buildSnapshot(t)}}

	_, err := NewEngine(store, snapshotKey, Options{}).Execute(context.Background(), "SELECT missing_column FROM stock_data")
	if !errors.Is(err, query.ErrStatement) {
		t.Fatalf("Execute() error = %v, want ErrStatement", err)
	}

	_, err = NewEngine(store, "snapshots/absent.parquet", Options{}).Execute(context.Background(), "SELECT 1")
	if !errors.Is(err, query.ErrUnavailable) {
		t.Fatalf("Execute() error = %v, want ErrUnavailable", err)
	}

	_, err = NewEngine(store, snapshotKey, Options{}).Execute(context.Background(), "DROP VIEW stock_data")
	if !errors.Is(err, query.ErrStatement) {
		t.Fatalf("Execute() error = %v, want ErrStatement", err)
	}
}

func buildSnapshot(t *testing.T) []byte {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	rows := []schema.StockRow{
		{Date: day(4), Ticker: "AAPL", BrandName: "Apple", Close: 175.10, IndustryTag: "technology", Year: 2024},
		{Date: day(1), Ticker: "AAPL", BrandName: "Apple", Close: 179.66, IndustryTag: "technology", Year: 2024},
		{Date: day(1), Ticker: "MSFT", BrandName: "Microsoft", Close: 415.50, IndustryTag: "technology", Year: 2024},
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[schema.StockRow](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}
