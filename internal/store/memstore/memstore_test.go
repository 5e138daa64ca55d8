package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/andresmejia3/veriface/internal/store/storetest"
	"github.com/andresmejia3/veriface/internal/types"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.ReplaceDescriptors(ctx, "alice", types.DescriptorSet{{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.LoadAllEnrolled(ctx)
	snap[0].Descriptors[0][0] = 42

	fresh, _ := s.LoadOneEnrolled(ctx, "alice")
	if fresh.Descriptors[0][0] != 1 {
		t.Errorf("snapshot mutation leaked into store: %v", fresh.Descriptors[0])
	}
}

func TestConcurrentReplaceAndLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			set := types.DescriptorSet{storetest.Descriptor(i, 16), storetest.Descriptor(i+1, 16), storetest.Descriptor(i+2, 16)}
			if err := s.ReplaceDescriptors(ctx, "shared", set); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			all, err := s.LoadAllEnrolled(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			for _, id := range all {
				if len(id.Descriptors) != 3 {
					t.Errorf("half-written identity: %d descriptors", len(id.Descriptors))
				}
			}
		}()
	}
	wg.Wait()
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().LoadAllEnrolled(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestReset(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.ReplaceDescriptors(ctx, "alice", types.DescriptorSet{{1}})
	_ = s.Reset(ctx)
	if all, _ := s.LoadAllEnrolled(ctx); len(all) != 0 {
		t.Errorf("expected empty store, got %d", len(all))
	}
}
