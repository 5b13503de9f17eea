// Package journal keeps a SQLite audit trail of migration
// attempts so an operator can see what was moved, when, and
// whether it committed or was rolled back.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Status is the final state of a migration attempt.
type Status string

const (
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	// StatusFailed means the attempt failed and at least one
	// undo action could not be applied.
	StatusFailed Status = "failed"
)

// Entry is one recorded migration attempt.
type Entry struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	FromPath     string
	ToPath       string
	OldEncoded   string
	NewEncoded   string
	Status       Status
	FilesUpdated int
	LinesChanged int
	Residues     int
	Error        string
}

// Journal manages a write connection and a read-only pool.
type Journal struct {
	writer *sql.DB
	reader *sql.DB
	mu     sync.Mutex // serializes writes
}

// makeDSN builds a SQLite connection string with shared pragmas.
func makeDSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	if readOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("_synchronous", "NORMAL")
	}
	return path + "?" + params.Encode()
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	writer, err := sql.Open("sqlite3", makeDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("opening writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	j := &Journal{writer: writer}
	if err := j.init(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	// The read-only pool can only open once the file exists.
	reader, err := sql.Open("sqlite3", makeDSN(path, true))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("opening reader: %w", err)
	}
	reader.SetMaxOpenConns(2)
	j.reader = reader
	return j, nil
}

func (j *Journal) init() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.writer.Exec(schemaSQL)
	return err
}

// Close closes both writer and reader connections.
func (j *Journal) Close() error {
	return errors.Join(j.writer.Close(), j.reader.Close())
}

const timeLayout = time.RFC3339Nano

// Record inserts e and returns its row id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.writer.ExecContext(ctx,
		`INSERT INTO migrations
		 (started_at, finished_at, from_path, to_path,
		  old_encoded, new_encoded, status,
		  files_updated, lines_changed, residues, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StartedAt.UTC().Format(timeLayout),
		e.FinishedAt.UTC().Format(timeLayout),
		e.FromPath, e.ToPath, e.OldEncoded, e.NewEncoded,
		string(e.Status),
		e.FilesUpdated, e.LinesChanged, e.Residues, e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting migration: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit entries, newest first. A limit of
// zero or less returns every entry.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, started_at, finished_at, from_path, to_path,
		 old_encoded, new_encoded, status,
		 files_updated, lines_changed, residues, error
		 FROM migrations ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
			status            string
		)
		if err := rows.Scan(
			&e.ID, &started, &finished, &e.FromPath, &e.ToPath,
			&e.OldEncoded, &e.NewEncoded, &status,
			&e.FilesUpdated, &e.LinesChanged, &e.Residues, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		e.Status = Status(status)
		e.StartedAt, _ = time.Parse(timeLayout, started)
		e.FinishedAt, _ = time.Parse(timeLayout, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastCommitted returns the most recent committed migration whose
// destination is toPath, or nil.
func (j *Journal) LastCommitted(
	ctx context.Context, toPath string,
) (*Entry, error) {
	row := j.reader.QueryRowContext(ctx,
		`SELECT id, started_at, from_path, old_encoded
		 FROM migrations
		 WHERE status = ? AND to_path = ?
		 ORDER BY id DESC LIMIT 1`,
		string(StatusCommitted), toPath,
	)
	var (
		e       Entry
		started string
	)
	err := row.Scan(&e.ID, &started, &e.FromPath, &e.OldEncoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last migration: %w", err)
	}
	e.StartedAt, _ = time.Parse(timeLayout, started)
	e.ToPath = toPath
	e.Status = StatusCommitted
	return &e, nil
}
