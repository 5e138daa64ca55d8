package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/veriface/internal/store/storetest"
	"github.com/andresmejia3/veriface/internal/types"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veriface.db")
	s, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore(t *testing.T) {
	s, _ := openTemp(t)
	storetest.Run(t, s)
}

func TestDescriptorsSurviveReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	want := types.DescriptorSet{storetest.Descriptor(11, 128), storetest.Descriptor(12, 128), storetest.Descriptor(13, 128)}
	if err := s.ReplaceDescriptors(ctx, "alice", want); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.LoadOneEnrolled(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("LoadOneEnrolled = %+v, %v", got, err)
	}
	for i := range want {
		for j := range want[i] {
			if got.Descriptors[i][j] != want[i][j] {
				t.Fatalf("descriptor %d[%d] = %v, want %v", i, j, got.Descriptors[i][j], want[i][j])
			}
		}
	}
}

func TestCorruptBlobIsReported(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	if err := s.ReplaceDescriptors(ctx, "alice", types.DescriptorSet{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE identity_descriptors SET embedding = x'010203'"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadAllEnrolled(ctx); err == nil {
		t.Error("expected decode error for truncated blob")
	}
}

func TestReset(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	if err := s.ReplaceDescriptors(ctx, "alice", types.DescriptorSet{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.LoadAllEnrolled(ctx); err == nil {
		t.Error("expected error querying dropped tables")
	}
}
