package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/lookout/internal/record"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	phone    TEXT NOT NULL,
	list     TEXT NOT NULL,
	saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (phone, list)
);

CREATE TABLE IF NOT EXISTS records (
	phone    TEXT NOT NULL,
	list     TEXT NOT NULL,
	position INTEGER NOT NULL,
	id       TEXT NOT NULL,
	status   INTEGER NOT NULL DEFAULT 0,
	body     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (phone, list, position)
);

CREATE INDEX IF NOT EXISTS idx_records_id ON records(phone, list, id);
`

// SQLite is the default snapshot store.
type SQLite struct {
	conn *sql.DB
	ttl  time.Duration
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
// A positive ttl makes older snapshots invisible to Load.
func OpenSQLite(dsn string, ttl ...time.Duration) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	s := &SQLite{conn: conn}
	if len(ttl) > 0 {
		s.ttl = ttl[0]
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Save replaces the snapshot for phone and list within a transaction.
func (s *SQLite) Save(ctx context.Context, phone string, list List, records []record.Record) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE phone = ? AND list = ?`, phone, list); err != nil {
		return fmt.Errorf("cache: clear records: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (phone, list, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(phone, list) DO UPDATE SET saved_at = excluded.saved_at
	`, phone, list, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache: upsert snapshot: %w", err)
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO records (phone, list, position, id, status, body) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("cache: prepare record insert: %w", err)
		}
		defer stmt.Close()
		for i, r := range records {
			body, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("cache: marshal record %s: %w", r.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, phone, list, i, r.ID, r.Status, string(body)); err != nil {
				return fmt.Errorf("cache: insert record: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Load returns the snapshot for phone and list in saved order.
func (s *SQLite) Load(ctx context.Context, phone string, list List) (Snapshot, error) {
	var savedAt time.Time
	err := s.conn.QueryRowContext(ctx,
		`SELECT saved_at FROM snapshots WHERE phone = ? AND list = ?`, phone, list).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, errNotCached
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("cache: load snapshot: %w", err)
	}
	if s.ttl > 0 && time.Since(savedAt) > s.ttl {
		return Snapshot{}, errNotCached
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT status, body FROM records WHERE phone = ? AND list = ? ORDER BY position`, phone, list)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cache: load records: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{Phone: phone, List: list, Records: []record.Record{}, SavedAt: savedAt}
	for rows.Next() {
		var status bool
		var body string
		if err := rows.Scan(&status, &body); err != nil {
			return Snapshot{}, fmt.Errorf("cache: scan record: %w", err)
		}
		var r record.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return Snapshot{}, fmt.Errorf("cache: decode record: %w", err)
		}
		r.Status = status
		snap.Records = append(snap.Records, r)
	}
	return snap, rows.Err()
}

// SetStatus sets the status flag of the cached record with id.
func (s *SQLite) SetStatus(ctx context.Context, phone string, list List, id string) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE records SET status = 1 WHERE phone = ? AND list = ? AND id = ?`, phone, list, id)
	if err != nil {
		return false, fmt.Errorf("cache: set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache: set status: %w", err)
	}
	return n > 0, nil
}
