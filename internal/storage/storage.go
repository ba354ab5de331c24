// Package storage abstracts the object store holding rendered charts and
// the Parquet snapshot of stock_data.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

const (
	ContentTypePNG     = "image/png"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
	// Metadata is stored as user metadata next to the object.
	Metadata map[string]string
}

// ObjectStore is the part of an object store the bot needs: charts and
// snapshots are written once and read back whole.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
