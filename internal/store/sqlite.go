package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend using a single SQLite table.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; the store's workers write concurrently.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, path: dbPath}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		ns         TEXT NOT NULL,
		body       BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_ns ON records(ns);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, ns, id string) ([]byte, error) {
	var body []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE id = ? AND ns = ?`, id, ns).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, ns, id string, data []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO records (id, ns, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		id, ns, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Scan visits records in insertion order.
func (b *SQLiteBackend) Scan(ctx context.Context, ns string, fn func(id string, data []byte) error) error {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, body FROM records WHERE ns = ? ORDER BY rowid`, ns)
	if err != nil {
		return err
	}
	type record struct {
		id   string
		body []byte
	}
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.id, &r.body); err != nil {
			rows.Close()
			return err
		}
		records = append(records, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// fn may hit the database again; the single connection must be free.
	for _, r := range records {
		if err := fn(r.id, r.body); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBackend) Wipe(ctx context.Context, ns string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM records WHERE ns = ?`, ns)
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
