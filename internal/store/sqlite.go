package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLite is the Store backed by the on-disk configuration database. A single
// connection serializes access; mu orders commits with their notifications.
type SQLite struct {
	db       *sql.DB
	logger   logger.Logger
	opts     Options
	mu       sync.Mutex
	notifier *notifier
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(cfg Config, log logger.Logger) (*SQLite, error) {
	errFactory := errors.New()

	if cfg.Path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	dsn := cfg.Path + "?_journal=WAL&_foreign_keys=1&_busy_timeout=250"
	if cfg.Path == ":memory:" {
		dsn = ":memory:?_foreign_keys=1"
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)

	if err := schema.Ensure(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Msg("Configuration store initialized")

	return &SQLite{
		db:       db,
		logger:   log,
		opts:     cfg.Options,
		notifier: newNotifier(),
	}, nil
}

// classify marks lock contention and timeouts as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return transient(err)
		}
		if sqErr.Code == sqlite3.ErrConstraint {
			return errors.New().Wrap(errors.ErrValidation, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transient(err)
	}
	return err
}

// write runs fn in its own transaction and publishes change once committed.
func (s *SQLite) write(ctx context.Context, change Change, fn func(tx *sql.Tx) error) error {
	return withRetry(ctx, s.opts, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}

		committed := false
		defer func() {
			if !committed {
				if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
					s.logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}()

		if err := fn(tx); err != nil {
			return classify(err)
		}
		if err := tx.Commit(); err != nil {
			return classify(err)
		}
		committed = true

		s.notifier.publish(change)
		return nil
	})
}

func (s *SQLite) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return withRetry(ctx, s.opts, func(ctx context.Context) error {
		return classify(fn(ctx))
	})
}

func (s *SQLite) ReadFanRows(ctx context.Context) (map[string]fan.Record, error) {
	var out map[string]fan.Record
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT name, subsystem, direction, speed, status, rpm FROM fan`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make(map[string]fan.Record)
		for rows.Next() {
			var (
				rec                     fan.Record
				direction, speed, state string
			)
			if err := rows.Scan(&rec.Name, &rec.Subsystem, &direction, &speed, &state, &rec.RPM); err != nil {
				return err
			}
			if err := decodeFan(&rec, direction, speed, state); err != nil {
				return err
			}
			out[rec.Name] = rec
		}
		return rows.Err()
	})
	return out, err
}

func decodeFan(rec *fan.Record, direction, speed, state string) error {
	var err error
	if rec.Direction, err = fan.ParseDirection(direction); err != nil {
		return errors.New().Wrap(ErrCorruptRow, err)
	}
	if rec.Speed, err = fan.ParseSpeed(speed); err != nil {
		return errors.New().Wrap(ErrCorruptRow, err)
	}
	if rec.Status, err = fan.ParseStatus(state); err != nil {
		return errors.New().Wrap(ErrCorruptRow, err)
	}
	return nil
}

func (s *SQLite) WriteFanRow(ctx context.Context, rec fan.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.write(ctx, Change{Table: TableFan, Key: rec.Name}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
        INSERT INTO fan (name, subsystem, direction, speed, status, rpm)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            subsystem = excluded.subsystem,
            direction = excluded.direction,
            speed     = excluded.speed,
            status    = excluded.status,
            rpm       = excluded.rpm`,
			rec.Name, rec.Subsystem, rec.Direction.String(), rec.Speed.String(),
			rec.Status.String(), rec.RPM)
		return err
	})
}

func (s *SQLite) DeleteFanRow(ctx context.Context, name string) error {
	return s.write(ctx, Change{Table: TableFan, Key: name}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM fan WHERE name = ?`, name)
		return err
	})
}

func (s *SQLite) ReadOverride(ctx context.Context) (fan.Override, error) {
	var out fan.Override
	err := s.read(ctx, func(ctx context.Context) error {
		var (
			active bool
			forced sql.NullString
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT active, forced_speed FROM system_override WHERE id = 1`).Scan(&active, &forced)
		if errors.Is(err, sql.ErrNoRows) {
			out = fan.Override{}
			return nil
		}
		if err != nil {
			return err
		}

		out = fan.Override{Active: active}
		if forced.Valid {
			speed, err := fan.ParseSpeed(forced.String)
			if err != nil {
				return errors.New().Wrap(ErrCorruptRow, err)
			}
			out.Speed = speed
		}
		if out.Active && !out.Speed.Valid() {
			return errors.New().WithData(ErrCorruptRow, "active override without a speed")
		}
		if !out.Active {
			out.Speed = 0
		}
		return nil
	})
	return out, err
}

func (s *SQLite) WriteOverride(ctx context.Context, o fan.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}

	var forced sql.NullString
	if o.Active {
		forced = sql.NullString{String: o.Speed.String(), Valid: true}
	}

	return s.write(ctx, Change{Table: TableOverride, Key: OverrideKey}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
        INSERT INTO system_override (id, active, forced_speed) VALUES (1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            active       = excluded.active,
            forced_speed = excluded.forced_speed`,
			o.Active, forced)
		return err
	})
}

func (s *SQLite) ReadSubsystems(ctx context.Context) ([]Subsystem, error) {
	var out []Subsystem
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
        SELECT s.id, s.name, f.fan_name
        FROM subsystem s
        LEFT JOIN subsystem_fans f ON f.subsystem_id = s.id
        ORDER BY s.name, f.fan_name`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		index := make(map[uuid.UUID]int)
		for rows.Next() {
			var (
				rawID, name string
				fanName     sql.NullString
			)
			if err := rows.Scan(&rawID, &name, &fanName); err != nil {
				return err
			}
			id, err := uuid.Parse(rawID)
			if err != nil {
				return errors.New().Wrap(ErrCorruptRow, err)
			}
			i, ok := index[id]
			if !ok {
				i = len(out)
				index[id] = i
				out = append(out, Subsystem{ID: id, Name: name, Fans: []string{}})
			}
			if fanName.Valid {
				out[i].Fans = append(out[i].Fans, fanName.String)
			}
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLite) WriteSubsystem(ctx context.Context, sub Subsystem) error {
	if sub.ID == uuid.Nil || sub.Name == "" {
		return errors.New().WithData(errors.ErrValidation, "subsystem needs an id and a name")
	}
	fans := sortedCopy(sub.Fans)

	return s.write(ctx, Change{Table: TableSubsystem, Key: sub.ID.String()}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
        INSERT INTO subsystem (id, name) VALUES (?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
			sub.ID.String(), sub.Name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM subsystem_fans WHERE subsystem_id = ?`, sub.ID.String()); err != nil {
			return err
		}
		for _, name := range fans {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subsystem_fans (subsystem_id, fan_name) VALUES (?, ?)`,
				sub.ID.String(), name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) DeleteSubsystem(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, Change{Table: TableSubsystem, Key: id.String()}, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM subsystem WHERE id = ?`, id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New().WithData(ErrSubsystemNotFound, id.String())
		}
		return nil
	})
}

func (s *SQLite) SetDaemonHardwareReady(ctx context.Context, daemon string) error {
	return s.write(ctx, Change{Table: TableDaemon, Key: daemon}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
        INSERT INTO daemon (name, cur_hw) VALUES (?, 1)
        ON CONFLICT(name) DO UPDATE SET cur_hw = 1`, daemon)
		return err
	})
}

func (s *SQLite) DaemonHardwareReady(ctx context.Context, daemon string) (bool, error) {
	var ready bool
	err := s.read(ctx, func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx,
			`SELECT cur_hw FROM daemon WHERE name = ?`, daemon).Scan(&ready)
		if errors.Is(err, sql.ErrNoRows) {
			ready = false
			return nil
		}
		return err
	})
	return ready, err
}

func (s *SQLite) Subscribe(buffer int) (<-chan Change, func()) {
	return s.notifier.subscribe(buffer)
}

func (s *SQLite) Close() error {
	s.notifier.closeAll()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Debug().Err(err).Msg("WAL checkpoint skipped")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Configuration store closed")
	return nil
}
