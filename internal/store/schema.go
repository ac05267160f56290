package store

import "codeberg.org/mutker/fand/internal/sqlschema"

const SchemaVersion = 1

var schema = sqlschema.Schema{
	Name:    "fand",
	Version: SchemaVersion,
	DDL: `
	   CREATE TABLE IF NOT EXISTS subsystem (
	       id    TEXT PRIMARY KEY,
	       name  TEXT NOT NULL UNIQUE
	   );
	   CREATE TABLE IF NOT EXISTS subsystem_fans (
	       subsystem_id  TEXT NOT NULL REFERENCES subsystem(id) ON DELETE CASCADE,
	       fan_name      TEXT NOT NULL,
	       PRIMARY KEY (subsystem_id, fan_name)
	   );
	   CREATE TABLE IF NOT EXISTS fan (
	       name       TEXT PRIMARY KEY,
	       subsystem  TEXT NOT NULL DEFAULT '',
	       direction  TEXT NOT NULL CHECK (direction IN ('f2b', 'b2f')),
	       speed      TEXT NOT NULL CHECK (speed IN ('slow', 'normal', 'medium', 'fast', 'max')),
	       status     TEXT NOT NULL CHECK (status IN ('uninitialized', 'ok', 'fault')),
	       rpm        INTEGER NOT NULL CHECK (typeof(rpm) = 'integer' AND rpm >= 0)
	   );
	   CREATE TABLE IF NOT EXISTS system_override (
	       id            INTEGER PRIMARY KEY CHECK (id = 1),
	       active        INTEGER NOT NULL CHECK (active IN (0, 1)),
	       forced_speed  TEXT CHECK (forced_speed IS NULL OR forced_speed IN ('slow', 'normal', 'medium', 'fast', 'max'))
	   );
	   CREATE TABLE IF NOT EXISTS daemon (
	       name    TEXT PRIMARY KEY,
	       cur_hw  INTEGER NOT NULL DEFAULT 0 CHECK (cur_hw IN (0, 1))
	   );
	   INSERT OR IGNORE INTO system_override (id, active, forced_speed) VALUES (1, 0, NULL);`,
	Tables: []string{"subsystem_fans", "subsystem", "fan", "system_override", "daemon"},
}
