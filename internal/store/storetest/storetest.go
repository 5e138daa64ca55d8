// Package storetest holds the behavior every identity store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/andresmejia3/veriface/internal/types"
)

// Store is the surface exercised by Run.
type Store interface {
	LoadAllEnrolled(ctx context.Context) ([]types.EnrolledIdentity, error)
	LoadOneEnrolled(ctx context.Context, key types.IdentityKey) (*types.EnrolledIdentity, error)
	ReplaceDescriptors(ctx context.Context, key types.IdentityKey, set types.DescriptorSet) error
	DeleteIdentity(ctx context.Context, key types.IdentityKey) (bool, error)
	ListIdentities(ctx context.Context) ([]types.IdentitySummary, error)
	RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error
	ListAttendance(ctx context.Context, key types.IdentityKey, limit int) ([]types.AttendanceRecord, error)
}

// Descriptor builds a deterministic descriptor of length dim. Values are
// chosen to be exactly representable so equality checks are meaningful.
func Descriptor(seed, dim int) types.Descriptor {
	d := make(types.Descriptor, dim)
	for i := range d {
		d[i] = float32((seed*31+i*7)%97-48) / 64
	}
	return d
}

// Run exercises s, which must start empty.
func Run(t *testing.T, s Store) {
	ctx := context.Background()

	// Empty catalog
	all, err := s.LoadAllEnrolled(ctx)
	if err != nil {
		t.Fatalf("LoadAllEnrolled failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("Expected empty catalog, got %d identities", len(all))
	}
	missing, err := s.LoadOneEnrolled(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("Expected nil for unknown identity, got %+v, %v", missing, err)
	}

	// Enroll two identities
	alice := types.DescriptorSet{Descriptor(1, 128), Descriptor(2, 128), Descriptor(3, 128)}
	bob := types.DescriptorSet{Descriptor(4, 128), Descriptor(5, 128), Descriptor(6, 128)}
	if err := s.ReplaceDescriptors(ctx, "alice", alice); err != nil {
		t.Fatalf("ReplaceDescriptors(alice) failed: %v", err)
	}
	if err := s.ReplaceDescriptors(ctx, "bob", bob); err != nil {
		t.Fatalf("ReplaceDescriptors(bob) failed: %v", err)
	}

	got, err := s.LoadOneEnrolled(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("LoadOneEnrolled(alice) = %+v, %v", got, err)
	}
	assertSetEqual(t, got.Descriptors, alice)
	if got.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}

	// Caller mutations must not reach the store
	alice[0][0] = 99
	again, _ := s.LoadOneEnrolled(ctx, "alice")
	if again.Descriptors[0][0] == 99 {
		t.Error("Store aliases the caller's descriptors")
	}
	alice[0][0] = Descriptor(1, 128)[0]

	all, err = s.LoadAllEnrolled(ctx)
	if err != nil {
		t.Fatalf("LoadAllEnrolled failed: %v", err)
	}
	if len(all) != 2 || all[0].Key != "alice" || all[1].Key != "bob" {
		t.Fatalf("Unexpected catalog: %+v", keys(all))
	}
	assertSetEqual(t, all[1].Descriptors, bob)

	// Re-registration replaces, never merges
	time.Sleep(10 * time.Millisecond)
	replacement := types.DescriptorSet{Descriptor(7, 128), Descriptor(8, 128), Descriptor(9, 128), Descriptor(10, 128)}
	if err := s.ReplaceDescriptors(ctx, "alice", replacement); err != nil {
		t.Fatalf("ReplaceDescriptors(replace) failed: %v", err)
	}
	got, _ = s.LoadOneEnrolled(ctx, "alice")
	assertSetEqual(t, got.Descriptors, replacement)

	summaries, err := s.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("ListIdentities failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 identities, got %d", len(summaries))
	}
	if summaries[0].Key != "alice" || summaries[0].Samples != 4 || summaries[0].Dimensions != 128 {
		t.Errorf("Unexpected summary: %+v", summaries[0])
	}
	if !summaries[0].UpdatedAt.After(summaries[0].CreatedAt) {
		t.Errorf("Expected updated_at after created_at, got %v / %v", summaries[0].UpdatedAt, summaries[0].CreatedAt)
	}

	// Attendance
	base := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)
	recs := []types.AttendanceRecord{
		{Identity: "alice", AttemptID: "a1", Status: "present", Score: 0.91, At: base},
		{Identity: "bob", AttemptID: "b1", Status: "late", Score: 0.82, At: base.Add(time.Hour)},
		{Identity: "alice", AttemptID: "a2", Status: "late", Score: 0.88, At: base.Add(2 * time.Hour)},
	}
	for _, r := range recs {
		if err := s.RecordAttendance(ctx, r); err != nil {
			t.Fatalf("RecordAttendance failed: %v", err)
		}
	}
	hist, err := s.ListAttendance(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListAttendance failed: %v", err)
	}
	if len(hist) != 2 || hist[0].AttemptID != "a2" || hist[1].AttemptID != "a1" {
		t.Fatalf("Unexpected attendance history: %+v", hist)
	}
	if !hist[0].At.Equal(recs[2].At) || hist[0].Status != "late" || hist[0].Score != 0.88 {
		t.Errorf("Attendance record altered: %+v", hist[0])
	}
	everyone, _ := s.ListAttendance(ctx, "", 2)
	if len(everyone) != 2 || everyone[1].Identity != "bob" {
		t.Errorf("Unexpected attendance page: %+v", everyone)
	}
	for _, limit := range []int{0, -1} {
		all, err := s.ListAttendance(ctx, "", limit)
		if err != nil {
			t.Fatalf("ListAttendance(limit %d) failed: %v", limit, err)
		}
		if len(all) != len(recs) || all[0].AttemptID != "a2" {
			t.Errorf("limit %d: want all %d events newest first, got %+v", limit, len(recs), all)
		}
	}

	// Delete
	ok, err := s.DeleteIdentity(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("DeleteIdentity(bob) = %v, %v", ok, err)
	}
	if ok, _ := s.DeleteIdentity(ctx, "bob"); ok {
		t.Error("Second delete reported success")
	}
	if gone, _ := s.LoadOneEnrolled(ctx, "bob"); gone != nil {
		t.Error("Deleted identity still loadable")
	}
	if left, _ := s.ListAttendance(ctx, "bob", 10); len(left) != 0 {
		t.Errorf("Attendance outlived identity: %+v", left)
	}
}

func assertSetEqual(t *testing.T, got, want types.DescriptorSet) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d descriptors, got %d", len(want), len(got))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("Descriptor %d: expected length %d, got %d", i, len(want[i]), len(got[i]))
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("Descriptor %d[%d]: expected %v, got %v", i, j, want[i][j], got[i][j])
			}
		}
	}
}

func keys(ids []types.EnrolledIdentity) []types.IdentityKey {
	out := make([]types.IdentityKey, len(ids))
	for i, id := range ids {
		out[i] = id.Key
	}
	return out
}
