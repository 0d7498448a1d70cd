package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/files"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/records"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/scheduling"
)

var version = "dev"

// stores groups the repositories of one storage backend.
type stores struct {
	availability availability.Repository
	appointments appointment.Repository
	users        identity.Repository
	records      records.Repository
	files        files.Repository
	eventLog     events.Recorder
	scope        api.TenantScope
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "json", os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("store", cfg.Store).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool *pgxpool.Pool
		st     stores
	)
	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: cfg.PGMaxConns,
			MinConns: cfg.PGMinConns,
			AppName:  "api-server",
		})
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		for _, id := range cfg.Tenants {
			if err := db.EnsureTenant(rootCtx, pgPool, id); err != nil {
				logger.Fatal().Err(err).Str("tenant", id).Msg("tenant provisioning error")
			}
		}
		logger.Info().Strs("tenants", cfg.Tenants).Msg("tenants provisioned")

		st = postgresStores(pgPool)
	default:
		st = memoryStores()
		logger.Warn().Msg("using in-memory stores, data is lost on restart")
	}

	// Slot locks: Redis when configured, otherwise in-process
	var (
		rdb    *redis.Client
		locker scheduling.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(redisclient.ClientOptions{
			Addr:         cfg.RedisAddr,
			Username:     cfg.RedisUsername,
			Password:     cfg.RedisPassword,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdle,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info().Msg("connected to Redis")
	} else {
		locker = scheduling.NewLocalLocker(cfg.LockWait)
		logger.Warn().Msg("REDIS_ADDR not set, slot locks are local to this process")
	}

	// Events: the store's log plus the broker when configured
	recorder := events.Fanout{st.eventLog}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connection error")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing amqp publisher")
			}
		}()
		recorder = append(recorder, pub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to AMQP")
	}

	// File bodies: MinIO when configured, otherwise memory
	var blobs files.BlobStore = files.NewMemoryBlobStore()
	if cfg.MinioEndpoint != "" {
		minioCtx, cancelMinio := context.WithTimeout(rootCtx, 10*time.Second)
		mb, err := files.NewMinioBlobStore(minioCtx, files.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		cancelMinio()
		if err != nil {
			logger.Fatal().Err(err).Msg("minio connection error")
		}
		blobs = mb
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("storing medical files in MinIO")
	} else {
		logger.Warn().Msg("MINIO_ENDPOINT not set, medical files are kept in memory")
	}

	router := newHandler(cfg, infra{
		stores:   st,
		locker:   locker,
		recorder: recorder,
		blobs:    blobs,
		health:   api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// infra is what the HTTP handler needs besides configuration.
type infra struct {
	stores   stores
	locker   scheduling.Locker
	recorder events.Recorder
	blobs    files.BlobStore
	health   *api.HealthHandler
}

// newHandler wires the services on top of infra and returns the router,
// with its own Prometheus registry behind /metrics.
func newHandler(cfg config.Config, in infra, logger zerolog.Logger) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "clinic")

	st := in.stores
	people := identity.NewService(identity.NewCachedDirectory(st.users, 5*time.Minute, 10*time.Minute))
	engine := scheduling.NewEngine(st.availability, st.appointments, m)
	booker := scheduling.NewBooker(engine, st.appointments, in.locker, people, in.recorder, m, scheduling.BookingOptions{
		RequireDeclaredSlot: cfg.RequireDeclaredSlot,
	})
	availSvc := availability.NewService(st.availability, engine, in.recorder, m, availability.Options{
		BlockOrphaningSlots: cfg.BlockOrphaningSlots,
		Guard:               booker,
	})

	return api.NewRouter(api.RouterConfig{
		Engine:        engine,
		Booker:        booker,
		Availability:  availSvc,
		Appointments:  appointment.NewService(st.appointments, in.recorder),
		Identity:      people,
		Records:       records.NewService(st.records, people),
		Files:         files.NewService(st.files, in.blobs, people),
		Gate:          access.NewGate(),
		Tokens:        access.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		TenantScope:   st.scope,
		DefaultTenant: cfg.DefaultTenant,
		Health:        in.health,
		Logger:        logger,
		Metrics:       m,
		Gatherer:      reg,
		CORSOrigins:   cfg.CORSOrigins,
		RateLimitRPS:  cfg.RateLimitRPS,
	})
}

func postgresStores(pool *pgxpool.Pool) stores {
	scoper := db.NewTenantScoper(pool)
	return stores{
		availability: availability.NewPgRepository(pool),
		appointments: appointment.NewPgRepository(pool),
		users:        identity.NewPgRepository(pool),
		records:      records.NewPgRepository(pool),
		files:        files.NewPgRepository(pool),
		eventLog:     events.NewPgLog(pool),
		scope:        scoper.Scope,
	}
}

func memoryStores() stores {
	return stores{
		availability: availability.NewMemoryRepository(),
		appointments: appointment.NewMemoryRepository(),
		users:        identity.NewMemoryRepository(),
		records:      records.NewMemoryRepository(),
		files:        files.NewMemoryRepository(),
		eventLog:     events.NewMemoryLog(),
		scope:        api.MemoryTenantScope,
	}
}
