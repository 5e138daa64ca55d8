package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/andresmejia3/veriface/internal/types"
)

// Store keeps enrolled identities in PostgreSQL, one pgvector row per descriptor.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables and vector extension if they don't exist.
// The embedding column is dimensionless so any model size can be stored.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS identities (
			identity_key TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS identity_descriptors (
			identity_key TEXT NOT NULL REFERENCES identities(identity_key) ON DELETE CASCADE,
			position INT NOT NULL,
			embedding VECTOR NOT NULL,
			PRIMARY KEY (identity_key, position)
		);
		CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			identity_key TEXT NOT NULL REFERENCES identities(identity_key) ON DELETE CASCADE,
			attempt_id TEXT NOT NULL,
			status TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attendance_identity_idx ON attendance (identity_key, recorded_at);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// LoadAllEnrolled returns every identity with its descriptors in capture order.
// It is a single statement, so the snapshot is consistent with respect to
// concurrent ReplaceDescriptors calls.
func (s *Store) LoadAllEnrolled(ctx context.Context) ([]types.EnrolledIdentity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.identity_key, i.updated_at, d.embedding::text
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
			updated time.Time
			vec     *pgvector.Vector
		)
		if err := rows.Scan(&key, &updated, &vec); err != nil {
			return nil, fmt.Errorf("scan enrolled identity: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].Key != types.IdentityKey(key) {
			out = append(out, types.EnrolledIdentity{Key: types.IdentityKey(key), UpdatedAt: updated})
		}
		if vec != nil {
			last := &out[len(out)-1]
			last.Descriptors = append(last.Descriptors, types.Descriptor(vec.Slice()))
		}
	}
	return out, rows.Err()
}

// LoadOneEnrolled returns the identity stored under key, or nil if there is none.
func (s *Store) LoadOneEnrolled(ctx context.Context, key types.IdentityKey) (*types.EnrolledIdentity, error) {
	var updated time.Time
	err := s.pool.QueryRow(ctx, "SELECT updated_at FROM identities WHERE identity_key = $1", string(key)).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity %q: %w", key, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT embedding::text FROM identity_descriptors
		WHERE identity_key = $1
		ORDER BY position
	`, string(key))
	if err != nil {
		return nil, fmt.Errorf("query descriptors for %q: %w", key, err)
	}
	defer rows.Close()

	id := &types.EnrolledIdentity{Key: key, UpdatedAt: updated}
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		id.Descriptors = append(id.Descriptors, types.Descriptor(vec.Slice()))
	}
	return id, rows.Err()
}

// ReplaceDescriptors upserts the identity and replaces its whole descriptor
// set in one transaction. The old set is never merged with the new one.
func (s *Store) ReplaceDescriptors(ctx context.Context, key types.IdentityKey, set types.DescriptorSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO identities (identity_key) VALUES ($1)
		ON CONFLICT (identity_key) DO UPDATE SET updated_at = NOW()
	`, string(key))
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM identity_descriptors WHERE identity_key = $1", string(key)); err != nil {
		return fmt.Errorf("clear descriptors: %w", err)
	}

	for i, d := range set {
		_, err := tx.Exec(ctx,
			"INSERT INTO identity_descriptors (identity_key, position, embedding) VALUES ($1, $2, $3::vector)",
			string(key), i, pgvector.NewVector(d))
		if err != nil {
			return fmt.Errorf("insert descriptor %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteIdentity removes an identity with its descriptors and attendance.
// It reports whether anything was deleted.
func (s *Store) DeleteIdentity(ctx context.Context, key types.IdentityKey) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM identities WHERE identity_key = $1", string(key))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListIdentities summarizes every identity, ordered by key.
func (s *Store) ListIdentities(ctx context.Context) ([]types.IdentitySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.identity_key, COUNT(d.position), COALESCE(MAX(vector_dims(d.embedding)), 0), i.created_at, i.updated_at
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
		var sum types.IdentitySummary
		var key string
		if err := rows.Scan(&key, &sum.Samples, &sum.Dimensions, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		sum.Key = types.IdentityKey(key)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RecordAttendance appends an attendance event.
func (s *Store) RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (identity_key, attempt_id, status, score, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(rec.Identity), rec.AttemptID, rec.Status, rec.Score, rec.At)
	return err
}

// ListAttendance returns the most recent events, newest first. An empty key lists everyone.
// A limit of 0 or less returns every event.
func (s *Store) ListAttendance(ctx context.Context, key types.IdentityKey, limit int) ([]types.AttendanceRecord, error) {
	var lim any // LIMIT NULL is LIMIT ALL
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT identity_key, attempt_id, status, score, recorded_at
		FROM attendance
		WHERE $1 = '' OR identity_key = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, string(key), lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AttendanceRecord
	for rows.Next() {
		var rec types.AttendanceRecord
		var id string
		if err := rows.Scan(&id, &rec.AttemptID, &rec.Status, &rec.Score, &rec.At); err != nil {
			return nil, err
		}
		rec.Identity = types.IdentityKey(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS attendance CASCADE;
		DROP TABLE IF EXISTS identity_descriptors CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
	`)
	return err
}
