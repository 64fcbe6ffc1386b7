package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jupyter/metrics-builder/internal/pipeline"
)

var sqliteSchema = []string{
	`DROP TABLE IF EXISTS traffic`,
	`DROP TABLE IF EXISTS search`,
	`CREATE TABLE traffic (
		project TEXT NOT NULL,
		date TEXT NOT NULL,
		version TEXT NOT NULL,
		path TEXT NOT NULL,
		views INTEGER NOT NULL,
		PRIMARY KEY (project, date, version, path)
	)`,
	`CREATE TABLE search (
		project TEXT NOT NULL,
		created_date TEXT NOT NULL,
		query TEXT NOT NULL,
		total_results INTEGER
	)`,
	`CREATE INDEX idx_search_project_query ON search(project, query)`,
}

// ExportSQLite writes every merged table into a SQLite database at path,
// replacing the traffic and search tables from any earlier run.
//
// A project whose rows cannot be converted is left out of the database and the
// others are still written; the per-project errors are returned joined after
// the commit. Unparsable Total Results cells are stored as NULL.
func ExportSQLite(ctx context.Context, path string, results []*pipeline.ProjectResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	insTraffic, err := tx.PrepareContext(ctx,
		`INSERT INTO traffic (project, date, version, path, views) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		_ = insTraffic.Close()
	}()
	insSearch, err := tx.PrepareContext(ctx,
		`INSERT INTO search (project, created_date, query, total_results) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		_ = insSearch.Close()
	}()

	var skipped []error
	for _, res := range results {
		var traffic []trafficRecord
		var search []searchRecord
		if res.Traffic != nil {
			if traffic, err = trafficRecords(res.Name, res.Traffic); err != nil {
				skipped = append(skipped, fmt.Errorf("project %s: %w", res.Name, err))
				continue
			}
		}
		if res.Search != nil {
			if search, err = searchRecords(res.Name, res.Search); err != nil {
				skipped = append(skipped, fmt.Errorf("project %s: %w", res.Name, err))
				continue
			}
		}
		for _, r := range traffic {
			if _, err := insTraffic.ExecContext(ctx, r.Project, r.Date, r.Version, r.Path, r.Views); err != nil {
				return fmt.Errorf("insert traffic row for %s: %w", res.Name, err)
			}
		}
		for _, r := range search {
			if _, err := insSearch.ExecContext(ctx, r.Project, r.CreatedDate, r.Query, r.TotalResults); err != nil {
				return fmt.Errorf("insert search row for %s: %w", res.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return errors.Join(skipped...)
}
