// File path: internal/jobs/store_sqlite.go
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists jobs in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite constructs a SQLiteStore at the provided path. An empty path
// falls back to the layered configuration. The schema is migrated on open.
func OpenSQLite(path string) (*SQLiteStore, error) {
	cfg, err := LoadStoreConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenSQLiteWithConfig(cfg)
}

// OpenSQLiteWithConfig constructs a SQLiteStore using the provided configuration.
func OpenSQLiteWithConfig(cfg StoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("jobs db path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve jobs db path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	// journal_mode must be set per connection, outside any transaction;
	// SQLite refuses to enter WAL mode mid-transaction.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingTimeout := cfg.BusyTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping jobs db: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
                id TEXT PRIMARY KEY,
                status TEXT NOT NULL,
                request TEXT NOT NULL,
                result TEXT,
                error TEXT NOT NULL DEFAULT '',
                created_at TIMESTAMP NOT NULL,
                started_at TIMESTAMP,
                finished_at TIMESTAMP
        );`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);`,
}

func (s *SQLiteStore) Create(ctx context.Context, job Job) error {
	const query = `INSERT INTO jobs (id, status, request, error, created_at)
                VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, job.ID, job.Status, string(job.Request), job.Error, job.CreatedAt); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// jobRow is the scan target for job queries. database/sql cannot scan TEXT
// or NULL columns into json.RawMessage or *time.Time directly, so rows come
// back through plain string and Null* fields and are mapped onto Job.
type jobRow struct {
	ID         string         `db:"id"`
	Status     string         `db:"status"`
	Request    string         `db:"request"`
	Result     sql.NullString `db:"result"`
	Error      string         `db:"error"`
	CreatedAt  time.Time      `db:"created_at"`
	StartedAt  sql.NullTime   `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
}

func (r jobRow) toJob() Job {
	job := Job{
		ID:        r.ID,
		Status:    Status(r.Status),
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
	}
	if r.Request != "" {
		job.Request = json.RawMessage(r.Request)
	}
	if r.Result.Valid && r.Result.String != "" {
		job.Result = json.RawMessage(r.Result.String)
	}
	if r.StartedAt.Valid {
		started := r.StartedAt.Time
		job.StartedAt = &started
	}
	if r.FinishedAt.Valid {
		finished := r.FinishedAt.Time
		job.FinishedAt = &finished
	}
	return job
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Job, error) {
	const query = `SELECT id, status, request, result, error, created_at, started_at, finished_at
                FROM jobs WHERE id = ?`
	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("select job %s: %w", id, err)
	}
	return row.toJob(), nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, status, request, result, error, created_at, started_at, finished_at
                FROM jobs ORDER BY created_at DESC LIMIT ?`
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	list := make([]Job, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toJob())
	}
	return list, nil
}

// MarkRunning transitions a pending job to running. It returns ErrJobFinished
// when the job was canceled or otherwise left pending before a worker claimed
// it, so a worker can skip the job without failing.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id string) error {
	const query = `UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, StatusRunning, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	const query = `UPDATE jobs SET status = ?, result = ?, finished_at = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, StatusCompleted, string(result), time.Now().UTC(), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id, message string) error {
	const query = `UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`
	res, err := s.db.ExecContext(ctx, query, StatusFailed, message, time.Now().UTC(), id, StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

// Cancel marks a pending or running job canceled. Canceling an already
// canceled job is a no-op; canceling a completed or failed job returns
// ErrJobFinished.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) error {
	const query = `UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`
	res, err := s.db.ExecContext(ctx, query, StatusCanceled, time.Now().UTC(), id, StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == StatusCanceled {
		return nil
	}
	return ErrJobFinished
}

// checkTransition distinguishes a missing job from a guarded update that
// matched no rows because the job already left the expected status.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job %s rows affected: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrJobFinished
}
