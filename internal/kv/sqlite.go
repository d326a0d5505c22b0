package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedrelay/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key. An expired entry is removed and
// reported as a miss.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key,
	).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}

	if expires.Valid {
		t, err := time.Parse(timeLayout, expires.String)
		if err == nil && !s.now().UTC().Before(t) {
			if err := s.Delete(ctx, key); err != nil {
				return "", false, err
			}
			return "", false, nil
		}
	}
	return value, true, nil
}

// Set stores value under key, clearing any previous expiry.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Expire sets a time-to-live on an existing key. Expiring a missing key is
// a no-op.
func (s *SQLite) Expire(ctx context.Context, key string, ttl time.Duration) error {
	deadline := s.now().UTC().Add(ttl).Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE kv_entries SET expires_at = ? WHERE key = ?`, deadline, key,
	)
	if err != nil {
		return fmt.Errorf("expire %q: %w", key, err)
	}
	return nil
}

// AddToSet adds member to the named set. Adding an existing member is a
// no-op.
func (s *SQLite) AddToSet(ctx context.Context, set, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_set_members (set_key, member) VALUES (?, ?)`,
		set, member,
	)
	if err != nil {
		return fmt.Errorf("add to set %q: %w", set, err)
	}
	return nil
}

// RemoveFromSet removes member from the named set, if present.
func (s *SQLite) RemoveFromSet(ctx context.Context, set, member string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_set_members WHERE set_key = ? AND member = ?`, set, member,
	)
	if err != nil {
		return fmt.Errorf("remove from set %q: %w", set, err)
	}
	return nil
}

// SetMembers returns all members of the named set. Order is not
// significant.
func (s *SQLite) SetMembers(ctx context.Context, set string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM kv_set_members WHERE set_key = ? ORDER BY member`, set,
	)
	if err != nil {
		return nil, fmt.Errorf("query set %q: %w", set, err)
	}
	defer func() { _ = rows.Close() }()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
