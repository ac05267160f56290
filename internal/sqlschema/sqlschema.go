// Package sqlschema versions the SQLite databases the daemon owns. A
// database whose recorded version differs from the one compiled in is
// backed up (when a backup directory is configured) and recreated.
package sqlschema

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/logger"
)

const (
	ErrInitFailed       = errors.ErrorCode("schema_init_failed")
	ErrValidationFailed = errors.ErrorCode("schema_validation_failed")
	ErrMigrationFailed  = errors.ErrorCode("schema_migration_failed")

	// VersionTable is created by every schema.
	VersionTable = "schema_versions"

	versionTableSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );`

	backupDirPerm = 0o755
)

// Schema describes one versioned database.
type Schema struct {
	// Name prefixes backup files and log lines.
	Name    string
	Version int
	// DDL creates every table except the version table.
	DDL string
	// Tables are dropped in order on a version mismatch, dependents first.
	Tables []string
}

// Ensure creates the schema on an empty database and recreates it on a
// version mismatch.
func (s Schema) Ensure(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := s.CurrentVersion(db)
	if err != nil {
		return err
	}

	if version == s.Version {
		log.Debug().Str("schema", s.Name).Int("version", version).Msg("Schema version is current")
		return nil
	}

	if version != 0 {
		log.Warn().
			Str("schema", s.Name).
			Int("found", version).
			Int("want", s.Version).
			Msg("Schema version mismatch, recreating")
		if backupDir != "" {
			if _, err := s.backup(db, backupDir, version, log); err != nil {
				return err
			}
		}
	}

	if err := s.drop(db, log); err != nil {
		return err
	}
	return s.Init(db, log)
}

// Init creates the tables and records the version in one transaction.
func (s Schema) Init(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Str("schema", s.Name).Msg("Creating database...")

	err := inTx(db, ErrInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(versionTableSQL + s.DDL); err != nil {
			return errFactory.WithData(ErrInitFailed, struct {
				Phase string
				Error string
			}{
				Phase: "create_tables",
				Error: err.Error(),
			})
		}

		if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, s.Version); err != nil {
			return errFactory.WithData(ErrInitFailed, struct {
				Phase string
				Error string
			}{
				Phase: "record_version",
				Error: err.Error(),
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("schema", s.Name).
		Int("version", s.Version).
		Msg("Schema initialized successfully")
	return nil
}

// CurrentVersion returns the recorded schema version, or 0 for an empty
// database.
func (Schema) CurrentVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, VersionTable)
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.New().WithData(ErrValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

func (s Schema) backup(db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, backupDirPerm); err != nil {
		return "", errFactory.WithData(ErrMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(dir, fmt.Sprintf("%s_v%d_%s.db", s.Name, version, timestamp))

	// VACUUM INTO requires no active transaction
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", errFactory.WithData(ErrMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}

func (s Schema) drop(db *sql.DB, log logger.Logger) error {
	tables := append(append([]string(nil), s.Tables...), VersionTable)

	return inTx(db, ErrMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.New().WithData(ErrMigrationFailed, struct {
					Phase string
					Table string
					Error string
				}{
					Phase: "drop_table",
					Table: table,
					Error: err.Error(),
				})
			}
		}
		return nil
	})
}

func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(code, err)
	}
	committed = true

	return nil
}
