package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Sample is one stored reading of a fan.
type Sample struct {
	Timestamp time.Time  `json:"timestamp"`
	Speed     fan.Speed  `json:"speed"`
	Status    fan.Status `json:"status"`
	RPM       int        `json:"rpm"`
}

// HistoryRepository batches snapshots into the SQLite history database.
type HistoryRepository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (*HistoryRepository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
	if cfg.DBPath == ":memory:" {
		dsn = ":memory:?_foreign_keys=1"
	} else if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
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
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &HistoryRepository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Snapshot, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Start background goroutine for periodic flushing if batching is enabled
	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *HistoryRepository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// History returns up to limit samples of one fan, newest first.
func (r *HistoryRepository) History(ctx context.Context, name string, limit int) ([]Sample, error) {
	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT p.timestamp, s.speed, s.status, s.rpm
        FROM fan_samples s
        JOIN passes p ON p.id = s.pass_id
        WHERE s.name = ?
        ORDER BY s.pass_id DESC
        LIMIT ?`, name, limit)
	if err != nil {
		return nil, errors.New().Wrap(ErrMetricsCollection, err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			ts            int64
			speed, status string
			sample        Sample
		)
		if err := rows.Scan(&ts, &speed, &status, &sample.RPM); err != nil {
			return nil, errors.New().Wrap(ErrMetricsCollection, err)
		}
		sample.Timestamp = time.UnixMilli(ts).UTC()
		if sample.Speed, err = fan.ParseSpeed(speed); err != nil {
			return nil, err
		}
		if sample.Status, err = fan.ParseStatus(status); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) Close() error {
	close(r.shutdownChan)

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Dropping unflushed history")
	}

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("WAL checkpoint skipped")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed gracefully")

	return nil
}

func (r *HistoryRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

func (r *HistoryRepository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	passStmt, err := tx.Prepare(insertPassSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer passStmt.Close()

	sampleStmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer sampleStmt.Close()

	for _, snapshot := range r.buffer {
		var forced sql.NullString
		if snapshot.Override.Active {
			forced = sql.NullString{String: snapshot.Override.Speed.String(), Valid: true}
		}

		res, err := passStmt.Exec(
			snapshot.Timestamp.UnixMilli(),
			snapshot.Pass.Writes,
			snapshot.Pass.Deferred,
			snapshot.Pass.ReadFailures,
			snapshot.Pass.Duration.Microseconds(),
			forced,
		)
		if err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
		passID, err := res.LastInsertId()
		if err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}

		for _, rec := range snapshot.Fans {
			if _, err := sampleStmt.Exec(
				passID, rec.Name, rec.Speed.String(), rec.Status.String(), rec.RPM,
			); err != nil {
				return errFactory.Wrap(ErrTransactionFailed, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed history to database")
	r.buffer = r.buffer[:0]

	return nil
}
