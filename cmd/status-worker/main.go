package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/logging"
)

// status-worker marks booked appointments on past dates as completed, tenant by tenant.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "json", os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout).With().Str("service", "status-worker").Logger()

	if cfg.Store != config.StorePostgres {
		logger.Fatal().Str("store", cfg.Store).Msg("status-worker needs STORE=postgres")
	}
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("status-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PGMaxConns,
		MinConns: cfg.PGMinConns,
		AppName:  "status-worker",
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	svc := appointment.NewService(appointment.NewPgRepository(pgPool), events.NewPgLog(pgPool))

	// Run once at startup
	runOnce(rootCtx, logger, pgPool, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping status worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, pgPool, svc)
		}
	}
}

func runOnce(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	tenants, err := db.ListTenants(runCtx, pool)
	if err != nil {
		logger.Error().Err(err).Msg("status run error")
		return
	}

	scope := func(ctx context.Context, id string, fn func(ctx context.Context) error) error {
		return db.WithTenantConn(ctx, pool, id, fn)
	}
	total := completeTenants(runCtx, logger, tenants, scope, svc, calendar.Today(start))

	logger.Info().
		Int("tenants", len(tenants)).
		Int("completed", total).
		Dur("took", time.Since(start)).
		Msg("status run complete")
}

// completeTenants runs CompletePast for every tenant inside scope and returns
// how many appointments were completed. A failing tenant does not stop the others.
func completeTenants(ctx context.Context, logger zerolog.Logger, tenants []string, scope func(ctx context.Context, id string, fn func(ctx context.Context) error) error, svc *appointment.Service, today time.Time) int {
	total := 0
	for _, id := range tenants {
		tenantCtx := logging.WithContext(ctx, logger.With().Str("tenant", id).Logger())
		err := scope(tenantCtx, id, func(ctx context.Context) error {
			n, err := svc.CompletePast(ctx, today)
			total += n
			return err
		})
		if err != nil {
			logger.Error().Err(err).Str("tenant", id).Msg("status run failed for tenant")
		}
	}
	return total
}
