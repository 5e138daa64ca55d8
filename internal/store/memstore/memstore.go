// Package memstore is an in-process identity store. Every read returns deep
// copies, so callers always hold a self-consistent snapshot.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/andresmejia3/veriface/internal/types"
)

type entry struct {
	set     types.DescriptorSet
	created time.Time
	updated time.Time
}

// Store keeps identities in memory.
type Store struct {
	mu         sync.RWMutex
	identities map[types.IdentityKey]*entry
	attendance []types.AttendanceRecord
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		identities: make(map[types.IdentityKey]*entry),
		now:        time.Now,
	}
}

// LoadAllEnrolled returns a copy of every identity, ordered by key.
func (s *Store) LoadAllEnrolled(ctx context.Context) ([]types.EnrolledIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.EnrolledIdentity, 0, len(s.identities))
	for key, e := range s.identities {
		out = append(out, types.EnrolledIdentity{Key: key, Descriptors: e.set.Clone(), UpdatedAt: e.updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// LoadOneEnrolled returns a copy of one identity, or nil.
func (s *Store) LoadOneEnrolled(ctx context.Context, key types.IdentityKey) (*types.EnrolledIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.identities[key]
	if !ok {
		return nil, nil
	}
	return &types.EnrolledIdentity{Key: key, Descriptors: e.set.Clone(), UpdatedAt: e.updated}, nil
}

// ReplaceDescriptors stores a copy of set under key, replacing any previous set.
func (s *Store) ReplaceDescriptors(ctx context.Context, key types.IdentityKey, set types.DescriptorSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.identities[key]
	if !ok {
		e = &entry{created: now}
		s.identities[key] = e
	}
	e.set = set.Clone()
	e.updated = now
	return nil
}

// DeleteIdentity removes an identity and its attendance.
func (s *Store) DeleteIdentity(ctx context.Context, key types.IdentityKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[key]; !ok {
		return false, nil
	}
	delete(s.identities, key)
	s.attendance = slices.DeleteFunc(s.attendance, func(r types.AttendanceRecord) bool { return r.Identity == key })
	return true, nil
}

// ListIdentities summarizes every identity, ordered by key.
func (s *Store) ListIdentities(ctx context.Context) ([]types.IdentitySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.IdentitySummary, 0, len(s.identities))
	for key, e := range s.identities {
		sum := types.IdentitySummary{Key: key, Samples: len(e.set), CreatedAt: e.created, UpdatedAt: e.updated}
		for _, d := range e.set {
			sum.Dimensions = max(sum.Dimensions, len(d))
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// RecordAttendance appends an attendance event.
func (s *Store) RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance = append(s.attendance, rec)
	return nil
}

// ListAttendance returns the most recent events, newest first. An empty key lists everyone.
func (s *Store) ListAttendance(ctx context.Context, key types.IdentityKey, limit int) ([]types.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AttendanceRecord
	for i := len(s.attendance) - 1; i >= 0; i-- {
		r := s.attendance[i]
		if key == "" || r.Identity == key {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reset forgets everything.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = make(map[types.IdentityKey]*entry)
	s.attendance = nil
	return nil
}
