package loader

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/storage"
)

const DefaultSnapshotKey = "snapshots/stock_data.parquet"

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
	MinDate     *time.Time
	MaxDate     *time.Time
}

func EncodeStockRowsToParquet(rows []schema.StockRow) (ParquetEncodeResult, error) {
	if len(rows) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("rows are required")
	}

	var minDate, maxDate *time.Time
	for _, row := range rows {
		if row.Date.IsZero() {
			continue
		}
		date := row.Date.UTC()
		if minDate == nil || date.Before(*minDate) {
			copy := date
			minDate = &copy
		}
		if maxDate == nil || date.After(*maxDate) {
			copy := date
			maxDate = &copy
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[schema.StockRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		MinDate:     minDate,
		MaxDate:     maxDate,
	}, nil
}

// ExportSnapshot writes the dataset as a Parquet object under key.
func ExportSnapshot(ctx context.Context, store storage.ObjectStore, key string, ds Dataset) (storage.ObjectInfo, ParquetEncodeResult, error) {
	if store == nil {
		return storage.ObjectInfo{}, ParquetEncodeResult{}, fmt.Errorf("object store is required")
	}
	if key == "" {
		key = DefaultSnapshotKey
	}
	if err := storage.ValidateSnapshotKey(key); err != nil {
		return storage.ObjectInfo{}, ParquetEncodeResult{}, err
	}
	encoded, err := EncodeStockRowsToParquet(ds.StockRows())
	if err != nil {
		return storage.ObjectInfo{}, ParquetEncodeResult{}, err
	}
	info, err := store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: storage.ContentTypeParquet,
		Metadata:    map[string]string{"record-count": strconv.FormatInt(encoded.RecordCount, 10)},
	})
	if err != nil {
		return storage.ObjectInfo{}, ParquetEncodeResult{}, fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return info, encoded, nil
}
