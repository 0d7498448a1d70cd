package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

var ErrUnknownTenant = apperr.NotFound("tenant")

// TenantScoper runs request work on a connection scoped to a registered tenant.
type TenantScoper struct {
	pool  *pgxpool.Pool
	known sync.Map
}

func NewTenantScoper(pool *pgxpool.Pool) *TenantScoper {
	return &TenantScoper{pool: pool}
}

func (s *TenantScoper) Scope(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if !tenant.Valid(tenantID) {
		return ErrUnknownTenant
	}
	if _, ok := s.known.Load(tenantID); !ok {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM public.tenants WHERE id = $1)`, tenantID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("lookup tenant: %w", err)
		}
		if !exists {
			return ErrUnknownTenant
		}
		s.known.Store(tenantID, struct{}{})
	}
	return WithTenantConn(ctx, s.pool, tenantID, fn)
}
