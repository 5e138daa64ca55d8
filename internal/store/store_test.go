package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/veriface/internal/store/storetest"
	"github.com/andresmejia3/veriface/internal/types"
)

// startPostgres runs a pgvector-enabled Postgres container and returns its URL.
// It requires Docker to be running.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	// We use the official pgvector image to ensure the extension is available.
	pgContainer, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("veriface_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return connStr
}

// TestStoreIntegration runs the shared store behavior against a real Postgres container.
func TestStoreIntegration(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	storetest.Run(t, s)

	// Reset drops everything; a new Store recreates the schema.
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to reconnect after reset: %v", err)
	}
	defer s2.Close()
	all, err := s2.LoadAllEnrolled(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("Expected empty catalog after reset, got %d, %v", len(all), err)
	}
}

// TestMixedDimensions checks that the dimensionless column keeps each length exactly.
func TestMixedDimensions(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	set := types.DescriptorSet{storetest.Descriptor(1, 512), storetest.Descriptor(2, 128)}
	if err := s.ReplaceDescriptors(ctx, "wide", set); err != nil {
		t.Fatalf("ReplaceDescriptors failed: %v", err)
	}
	got, err := s.LoadOneEnrolled(ctx, "wide")
	if err != nil {
		t.Fatalf("LoadOneEnrolled failed: %v", err)
	}
	if len(got.Descriptors) != 2 || len(got.Descriptors[0]) != 512 || len(got.Descriptors[1]) != 128 {
		t.Errorf("Unexpected shapes after round trip")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
