package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/veriface/internal/config"
	"github.com/andresmejia3/veriface/internal/service"
	"github.com/andresmejia3/veriface/internal/store"
	"github.com/andresmejia3/veriface/internal/store/memstore"
	"github.com/andresmejia3/veriface/internal/store/sqlite"
	"github.com/andresmejia3/veriface/internal/types"
)

// Catalog is everything the CLI does with an identity store.
type Catalog interface {
	service.Store
	DeleteIdentity(ctx context.Context, key types.IdentityKey) (bool, error)
	ListIdentities(ctx context.Context) ([]types.IdentitySummary, error)
	RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error
	ListAttendance(ctx context.Context, key types.IdentityKey, limit int) ([]types.AttendanceRecord, error)
	Reset(ctx context.Context) error
}

// openCatalog opens the configured backend. The returned func releases it.
func openCatalog(ctx context.Context, cfg *config.Config) (Catalog, func() error, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error {
			s.Close()
			return nil
		}, nil
	case config.BackendSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendMemory:
		return memstore.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
