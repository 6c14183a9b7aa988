package db

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Column types differ between PostgreSQL and SQLite; the DDL below uses
// placeholders that are expanded per driver.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		producer    {{JSON}} NOT NULL,
		created_at  {{TIMESTAMP}} NOT NULL,
		updated_at  {{TIMESTAMP}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS series (
		id          TEXT PRIMARY KEY,
		project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sort_order  INTEGER NOT NULL,
		created_at  {{TIMESTAMP}} NOT NULL,
		updated_at  {{TIMESTAMP}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_series_project ON series (project_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS episodes (
		id             TEXT PRIMARY KEY,
		project_id     TEXT NOT NULL,
		series_id      TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		title          TEXT NOT NULL,
		code           TEXT NOT NULL DEFAULT '',
		brief          TEXT NOT NULL DEFAULT '',
		current_phase  TEXT NOT NULL,
		phase_progress INTEGER NOT NULL DEFAULT 0,
		sort_order     INTEGER NOT NULL,
		created_at     {{TIMESTAMP}} NOT NULL,
		updated_at     {{TIMESTAMP}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_series ON episodes (project_id, series_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS research_reports (
		id                TEXT PRIMARY KEY,
		project_id        TEXT NOT NULL,
		series_id         TEXT NOT NULL,
		episode_id        TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
		title             TEXT NOT NULL,
		query             TEXT NOT NULL DEFAULT '',
		type              TEXT NOT NULL,
		status            TEXT NOT NULL,
		executive_summary TEXT NOT NULL DEFAULT '',
		key_findings      {{JSON}} NOT NULL,
		producer_notes    TEXT NOT NULL DEFAULT '',
		linked_assets     {{JSON}} NOT NULL,
		bibliography      {{JSON}} NOT NULL,
		attached_files    {{JSON}} NOT NULL,
		created_at        {{TIMESTAMP}} NOT NULL,
		updated_at        {{TIMESTAMP}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_episode ON research_reports (project_id, series_id, episode_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS knowledge_base (
		seq              {{SERIAL_PK}},
		id               TEXT NOT NULL UNIQUE,
		project_id       TEXT NOT NULL,
		series_id        TEXT NOT NULL,
		episode_id       TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
		fact             TEXT NOT NULL,
		source_report_id TEXT NOT NULL DEFAULT '',
		source_indices   {{JSON}} NOT NULL,
		confidence       TEXT NOT NULL,
		category         TEXT NOT NULL,
		created_at       {{TIMESTAMP}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kb_episode ON knowledge_base (project_id, series_id, episode_id, seq)`,
}

func schemaFor(driver string) []string {
	var r *strings.Replacer
	if driver == DriverSQLite {
		r = strings.NewReplacer(
			"{{JSON}}", "TEXT",
			"{{TIMESTAMP}}", "TIMESTAMP",
			"{{SERIAL_PK}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		)
	} else {
		r = strings.NewReplacer(
			"{{JSON}}", "JSONB",
			"{{TIMESTAMP}}", "TIMESTAMPTZ",
			"{{SERIAL_PK}}", "BIGSERIAL PRIMARY KEY",
		)
	}
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}

// Migrate creates the tables and indexes if they do not exist
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(c.db.DriverName()) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	c.logger.Info("Database schema applied", zap.String("driver", c.db.DriverName()))
	return nil
}
