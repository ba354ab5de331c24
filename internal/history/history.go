// Package history keeps an operational log of answered questions.
package history

import (
	"context"
	"time"
)

// Entry is one answered question. Request text and SQL are stored as-is.
type Entry struct {
	TraceID   string
	Request   string
	SQL       string
	State     string
	ErrorKind string
	Rows      int
	Duration  time.Duration
	ChartKey  string
	CreatedAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	// Prune deletes entries created before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Noop is used when no history backend is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) Record(context.Context, Entry) error            { return nil }
func (Noop) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (Noop) Close() error                                    { return nil }
