package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/tenant"
)

//go:embed schema.sql
var tenantSchema string

const registryDDL = `
CREATE TABLE IF NOT EXISTS public.tenants (
    id         TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureTenant creates the tenant's schema and tables if missing and records
// the tenant in the registry. Safe to run on every start.
func EnsureTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	if !tenant.Valid(tenantID) {
		return fmt.Errorf("invalid tenant identifier %q", tenantID)
	}

	if _, err := pool.Exec(ctx, registryDDL); err != nil {
		return fmt.Errorf("create tenant registry: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", SchemaName(tenantID))); err != nil {
		return fmt.Errorf("create schema for %s: %w", tenantID, err)
	}

	err := WithTenantConn(ctx, pool, tenantID, func(ctx context.Context) error {
		return WithTx(ctx, pool, func(ctx context.Context) error {
			if _, err := Conn(ctx, pool).Exec(ctx, tenantSchema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("migrate tenant %s: %w", tenantID, err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO public.tenants (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, tenantID)
	if err != nil {
		return fmt.Errorf("register tenant %s: %w", tenantID, err)
	}
	return nil
}

// ListTenants returns every registered tenant id.
func ListTenants(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM public.tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
