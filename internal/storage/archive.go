package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// ChartArchive stores rendered PNG charts under date-partitioned keys.
type ChartArchive struct {
	store ObjectStore
	now   func() time.Time
}

func NewChartArchive(store ObjectStore) *ChartArchive {
	return &ChartArchive{store: store, now: time.Now}
}

func (a *ChartArchive) SaveChart(ctx context.Context, traceID string, png []byte) (string, error) {
	if a == nil || a.store == nil {
		return "", fmt.Errorf("object store is required")
	}
	key, err := BuildChartPath(traceID, a.now())
	if err != nil {
		return "", err
	}
	if _, err := a.store.Put(ctx, key, bytes.NewReader(png), int64(len(png)), PutOptions{
		ContentType: ContentTypePNG,
		Metadata:    map[string]string{"trace-id": traceID},
	}); err != nil {
		return "", fmt.Errorf("put chart %q: %w", key, err)
	}
	return key, nil
}
