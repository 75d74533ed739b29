// Package sqlite provides SQLite-based deployment history for rocketeer.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/guoyu07/rocketeer/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "history.db"

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

var _ domain.HistoryStore = (*DB)(nil)

// Open creates or opens the SQLite database at dir/history.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS deployments (
			id             TEXT PRIMARY KEY,
			application    TEXT NOT NULL DEFAULT '',
			pipeline       TEXT NOT NULL,
			release_name   TEXT NOT NULL DEFAULT '',
			pretend        BOOLEAN DEFAULT 0,
			verdict        TEXT NOT NULL DEFAULT '',
			failed_task    TEXT NOT NULL DEFAULT '',
			last_completed TEXT NOT NULL DEFAULT '',
			message        TEXT NOT NULL DEFAULT '',
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_started ON deployments(started_at)`,

		// One row per finished task invocation, nested tasks included.
		`CREATE TABLE IF NOT EXISTS task_records (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			deployment_id TEXT NOT NULL REFERENCES deployments(id),
			task          TEXT NOT NULL,
			parent        TEXT NOT NULL DEFAULT '',
			depth         INTEGER NOT NULL DEFAULT 0,
			verdict       TEXT NOT NULL,
			message       TEXT NOT NULL DEFAULT '',
			exit_code     INTEGER NOT NULL DEFAULT 0,
			commands      INTEGER NOT NULL DEFAULT 0,
			output        TEXT NOT NULL DEFAULT '',
			started_at    INTEGER NOT NULL,
			duration_ms   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_records_deployment ON task_records(deployment_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Deployments ────────────────────────────────────────────────────────────

// BeginDeployment inserts a running deployment.
func (d *DB) BeginDeployment(dep domain.Deployment) error {
	_, err := d.db.Exec(
		`INSERT INTO deployments (id, application, pipeline, release_name, pretend, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		dep.ID, dep.Application, dep.Pipeline, dep.Release, dep.Pretend, dep.StartedAt.UnixMilli(),
	)
	return err
}

// FinishDeployment records the verdict of a deployment. A deployment that was
// never begun is inserted.
func (d *DB) FinishDeployment(dep domain.Deployment) error {
	_, err := d.db.Exec(
		`INSERT INTO deployments (id, application, pipeline, release_name, pretend, verdict, failed_task, last_completed, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			verdict=excluded.verdict,
			failed_task=excluded.failed_task,
			last_completed=excluded.last_completed,
			message=excluded.message,
			finished_at=excluded.finished_at`,
		dep.ID, dep.Application, dep.Pipeline, dep.Release, dep.Pretend,
		string(dep.Verdict), dep.FailedTask, dep.LastCompleted, dep.Message,
		dep.StartedAt.UnixMilli(), nullableUnixMilli(dep.FinishedAt),
	)
	return err
}

// GetDeployment retrieves a deployment by ID or unique ID prefix.
func (d *DB) GetDeployment(id string) (*domain.Deployment, error) {
	rows, err := d.db.Query(
		`SELECT `+deploymentColumns+` FROM deployments
		 WHERE id = ? OR id LIKE ? ESCAPE '\'
		 ORDER BY (id = ?) DESC LIMIT 2`,
		id, escapeLike(id)+"%", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []domain.Deployment
	for rows.Next() {
		dep, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, *dep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch {
	case len(found) == 0 || id == "":
		return nil, fmt.Errorf("%w: %s", domain.ErrDeploymentNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("deployment id prefix %q is ambiguous", id)
	}
}

// ListDeployments returns the most recent deployments first. limit <= 0
// returns all of them.
func (d *DB) ListDeployments(limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(
		`SELECT `+deploymentColumns+` FROM deployments ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Deployment
	for rows.Next() {
		dep, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dep)
	}
	return out, rows.Err()
}

// PruneDeployments deletes all but the newest keep deployments and their
// task records. It returns the number of deployments removed.
func (d *DB) PruneDeployments(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	const stale = `SELECT id FROM deployments WHERE id NOT IN (
		SELECT id FROM deployments ORDER BY started_at DESC, rowid DESC LIMIT ?
	)`

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_records WHERE deployment_id IN (`+stale+`)`, keep); err != nil {
		return 0, err
	}
	result, err := tx.Exec(`DELETE FROM deployments WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), tx.Commit()
}

// ─── Task Records ───────────────────────────────────────────────────────────

// RecordTask appends the result of one task invocation.
func (d *DB) RecordTask(rec domain.TaskRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO task_records (deployment_id, task, parent, depth, verdict, message, exit_code, commands, output, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeploymentID, rec.Task, rec.Parent, rec.Depth, string(rec.Verdict), rec.Message,
		rec.ExitCode, rec.Commands, rec.Output, rec.StartedAt.UnixMilli(), rec.Duration.Milliseconds(),
	)
	return err
}

// ListTaskRecords returns the records of a deployment in completion order.
func (d *DB) ListTaskRecords(deploymentID string) ([]domain.TaskRecord, error) {
	rows, err := d.db.Query(
		`SELECT deployment_id, task, parent, depth, verdict, message, exit_code, commands, output, started_at, duration_ms
		 FROM task_records WHERE deployment_id = ? ORDER BY id`, deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		var rec domain.TaskRecord
		var verdict string
		var startedAt, durationMs int64
		if err := rows.Scan(&rec.DeploymentID, &rec.Task, &rec.Parent, &rec.Depth, &verdict,
			&rec.Message, &rec.ExitCode, &rec.Commands, &rec.Output, &startedAt, &durationMs); err != nil {
			return nil, err
		}
		rec.Verdict = domain.Verdict(verdict)
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

const deploymentColumns = `id, application, pipeline, release_name, pretend, verdict, failed_task, last_completed, message, started_at, finished_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(s scanner) (*domain.Deployment, error) {
	var dep domain.Deployment
	var verdict string
	var startedAt int64
	var finishedAt sql.NullInt64

	err := s.Scan(&dep.ID, &dep.Application, &dep.Pipeline, &dep.Release, &dep.Pretend,
		&verdict, &dep.FailedTask, &dep.LastCompleted, &dep.Message, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, err
	}

	dep.Verdict = domain.Verdict(verdict)
	dep.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		dep.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	return &dep, nil
}

func nullableUnixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
