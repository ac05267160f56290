package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/fand/internal/fan"
)

// Collector receives one snapshot per reconciliation pass.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository persists snapshots as per-fan sample history.
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot is the outcome of one reconciliation pass.
type Snapshot struct {
	Timestamp time.Time
	Fans      []fan.Record
	Override  fan.Override
	Pass      PassStats
}

type PassStats struct {
	Writes       int
	Deferred     int
	ReadFailures int
	Duration     time.Duration
}
