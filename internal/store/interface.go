// Package store is the daemon's adapter over the shared configuration
// database. It exposes the fan table, the subsystem table, the singleton
// override row and the daemon table, each row write being its own
// transaction, plus change notification for all of them.
package store

import (
	"context"
	"time"

	"codeberg.org/mutker/fand/internal/fan"
	"github.com/google/uuid"
)

// Store is implemented by the SQLite backend and the in-memory backend.
type Store interface {
	ReadFanRows(ctx context.Context) (map[string]fan.Record, error)
	WriteFanRow(ctx context.Context, rec fan.Record) error
	DeleteFanRow(ctx context.Context, name string) error

	ReadOverride(ctx context.Context) (fan.Override, error)
	WriteOverride(ctx context.Context, o fan.Override) error

	ReadSubsystems(ctx context.Context) ([]Subsystem, error)
	WriteSubsystem(ctx context.Context, s Subsystem) error
	DeleteSubsystem(ctx context.Context, id uuid.UUID) error

	// SetDaemonHardwareReady records that the named daemon has pushed its
	// first hardware state into the database.
	SetDaemonHardwareReady(ctx context.Context, daemon string) error
	DaemonHardwareReady(ctx context.Context, daemon string) (bool, error)

	// Subscribe returns a bounded channel receiving one Change per committed
	// write and a function that cancels the subscription.
	Subscribe(buffer int) (<-chan Change, func())

	Close() error
}

// Subsystem is a chassis unit owning a set of fan rows.
type Subsystem struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Fans []string  `json:"fans"`
}

// Table names a watched table.
type Table string

const (
	TableFan       Table = "fan"
	TableSubsystem Table = "subsystem"
	TableOverride  Table = "override"
	TableDaemon    Table = "daemon"
)

// OverrideKey is the key of the singleton override row.
const OverrideKey = "system"

// Change identifies a committed row change.
type Change struct {
	Table Table
	Key   string
}

// Options bound every call made against the backing database.
type Options struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout: 2 * time.Second,
		Retries: 3,
		Backoff: 50 * time.Millisecond,
	}
}
