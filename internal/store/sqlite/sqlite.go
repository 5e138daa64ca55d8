// Package sqlite is an embedded, single-file identity store. Descriptors are
// stored as little-endian float32 blobs, so no vector extension is needed.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/andresmejia3/veriface/internal/types"
)

// Store is an identity store backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and initializes the schema.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identities (
			identity_key TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS identity_descriptors (
			identity_key TEXT NOT NULL REFERENCES identities(identity_key) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			dims INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (identity_key, position)
		);
		CREATE TABLE IF NOT EXISTS attendance (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_key TEXT NOT NULL REFERENCES identities(identity_key) ON DELETE CASCADE,
			attempt_id TEXT NOT NULL,
			status TEXT NOT NULL,
			score REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attendance_identity_idx ON attendance (identity_key, recorded_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(blob []byte) (types.Descriptor, error) {
	var d types.Descriptor
	if err := d.UnmarshalBinary(blob); err != nil {
		return nil, err
	}
	return d, nil
}

func stamp(t time.Time) int64 { return t.UTC().UnixNano() }

func unstamp(n int64) time.Time { return time.Unix(0, n).UTC() }

// LoadAllEnrolled returns every identity with its descriptors in capture order.
func (s *Store) LoadAllEnrolled(ctx context.Context) ([]types.EnrolledIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.identity_key, i.updated_at, d.embedding
		FROM identities i
		LEFT JOIN identity_descriptors d ON d.identity_key = i.identity_key
		ORDER BY i.identity_key, d.position
	`)
	if err != nil {
		return nil, fmt.Errorf("query enrolled identities: %w", err)
	}
	defer rows.Close()

	var out []types.EnrolledIdentity
	for rows.Next() {
		var (
			key     string
			updated int64
			blob    []byte
		)
		if err := rows.Scan(&key, &updated, &blob); err != nil {
			return nil, fmt.Errorf("scan enrolled identity: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].Key != types.IdentityKey(key) {
			out = append(out, types.EnrolledIdentity{Key: types.IdentityKey(key), UpdatedAt: unstamp(updated)})
		}
		if blob != nil {
			d, err := decode(blob)
			if err != nil {
				return nil, fmt.Errorf("decode descriptor for %q: %w", key, err)
			}
			last := &out[len(out)-1]
			last.Descriptors = append(last.Descriptors, d)
		}
	}
	return out, rows.Err()
}

// LoadOneEnrolled returns the identity stored under key, or nil if there is none.
func (s *Store) LoadOneEnrolled(ctx context.Context, key types.IdentityKey) (*types.EnrolledIdentity, error) {
	var updated int64
	err := s.db.QueryRowContext(ctx, "SELECT updated_at FROM identities WHERE identity_key = ?", string(key)).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity %q: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT embedding FROM identity_descriptors WHERE identity_key = ? ORDER BY position", string(key))
	if err != nil {
		return nil, fmt.Errorf("query descriptors for %q: %w", key, err)
	}
	defer rows.Close()

	id := &types.EnrolledIdentity{Key: key, UpdatedAt: unstamp(updated)}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		d, err := decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decode descriptor for %q: %w", key, err)
		}
		id.Descriptors = append(id.Descriptors, d)
	}
	return id, rows.Err()
}

// ReplaceDescriptors upserts the identity and replaces its descriptor set in one transaction.
func (s *Store) ReplaceDescriptors(ctx context.Context, key types.IdentityKey, set types.DescriptorSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := stamp(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (identity_key, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (identity_key) DO UPDATE SET updated_at = excluded.updated_at
	`, string(key), now, now)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM identity_descriptors WHERE identity_key = ?", string(key)); err != nil {
		return fmt.Errorf("clear descriptors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO identity_descriptors (identity_key, position, dims, embedding) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, d := range set {
		blob, err := d.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(key), i, len(d), blob); err != nil {
			return fmt.Errorf("insert descriptor %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// DeleteIdentity removes an identity with its descriptors and attendance.
func (s *Store) DeleteIdentity(ctx context.Context, key types.IdentityKey) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM identities WHERE identity_key = ?", string(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListIdentities summarizes every identity, ordered by key.
func (s *Store) ListIdentities(ctx context.Context) ([]types.IdentitySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.identity_key, COUNT(d.position), COALESCE(MAX(d.dims), 0), i.created_at, i.updated_at
		FROM identities i
		LEFT JOIN identity_descriptors d ON d.identity_key = i.identity_key
		GROUP BY i.identity_key
		ORDER BY i.identity_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.IdentitySummary
	for rows.Next() {
		var (
			key              string
			sum              types.IdentitySummary
			created, updated int64
		)
		if err := rows.Scan(&key, &sum.Samples, &sum.Dimensions, &created, &updated); err != nil {
			return nil, err
		}
		sum.Key = types.IdentityKey(key)
		sum.CreatedAt, sum.UpdatedAt = unstamp(created), unstamp(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RecordAttendance appends an attendance event.
func (s *Store) RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (identity_key, attempt_id, status, score, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(rec.Identity), rec.AttemptID, rec.Status, rec.Score, stamp(rec.At))
	return err
}

// ListAttendance returns the most recent events, newest first. An empty key lists everyone.
// A limit of 0 or less returns every event.
func (s *Store) ListAttendance(ctx context.Context, key types.IdentityKey, limit int) ([]types.AttendanceRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite reads a negative LIMIT as no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_key, attempt_id, status, score, recorded_at
		FROM attendance
		WHERE ?1 = '' OR identity_key = ?1
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?2
	`, string(key), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AttendanceRecord
	for rows.Next() {
		var (
			rec types.AttendanceRecord
			id  string
			at  int64
		)
		if err := rows.Scan(&id, &rec.AttemptID, &rec.Status, &rec.Score, &at); err != nil {
			return nil, err
		}
		rec.Identity = types.IdentityKey(id)
		rec.At = unstamp(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Reset drops all application tables.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS attendance;
		DROP TABLE IF EXISTS identity_descriptors;
		DROP TABLE IF EXISTS identities;
	`)
	return err
}
