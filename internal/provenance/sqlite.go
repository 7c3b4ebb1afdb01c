package provenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS provenance_records (
	kind       TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	seq        INTEGER NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_provenance_kind_seq ON provenance_records(kind, seq);
`

// SQLiteBackend persists records in a single sqlite table
type SQLiteBackend struct {
	conn *sql.DB
}

// OpenSQLiteBackend opens (or creates) the database file at path
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite backend requires a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", path, 5000)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBackend{conn: conn}, nil
}

// Put upserts the record. The original seq is kept so listing order is stable.
func (b *SQLiteBackend) Put(ctx context.Context, kind Kind, id string, data []byte) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT INTO provenance_records (kind, id, data, seq, updated_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM provenance_records), ?)
		ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(kind), id, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

// Get reads one record
func (b *SQLiteBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	var data []byte
	err := b.conn.QueryRowContext(ctx,
		`SELECT data FROM provenance_records WHERE kind = ? AND id = ?`,
		string(kind), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return data, nil
}

// List returns every record of a kind in insertion order
func (b *SQLiteBackend) List(ctx context.Context, kind Kind) ([][]byte, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT data FROM provenance_records WHERE kind = ? ORDER BY seq`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

// Close closes the database
func (b *SQLiteBackend) Close() error {
	return b.conn.Close()
}
