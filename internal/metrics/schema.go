package metrics

import "codeberg.org/mutker/fand/internal/sqlschema"

const (
	SchemaVersion = 1

	insertPassSQL = `
    INSERT INTO passes (timestamp, writes, deferred, read_failures, duration_us, override)
    VALUES (?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO fan_samples (pass_id, name, speed, status, rpm)
    VALUES (?, ?, ?, ?, ?)`
)

var schema = sqlschema.Schema{
	Name:    "history",
	Version: SchemaVersion,
	DDL: `
	   CREATE TABLE IF NOT EXISTS passes (
	       id             INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp      INTEGER NOT NULL,
	       writes         INTEGER NOT NULL CHECK (writes >= 0),
	       deferred       INTEGER NOT NULL CHECK (deferred >= 0),
	       read_failures  INTEGER NOT NULL CHECK (read_failures >= 0),
	       duration_us    INTEGER NOT NULL,
	       override       TEXT
	   );
	   CREATE TABLE IF NOT EXISTS fan_samples (
	       pass_id    INTEGER NOT NULL REFERENCES passes(id),
	       name       TEXT NOT NULL,
	       speed      TEXT NOT NULL,
	       status     TEXT NOT NULL,
	       rpm        INTEGER NOT NULL CHECK (typeof(rpm) = 'integer' AND rpm >= 0),
	       PRIMARY KEY (pass_id, name)
	   );
	   CREATE INDEX IF NOT EXISTS fan_samples_name ON fan_samples (name, pass_id);`,
	Tables: []string{"fan_samples", "passes"},
}
