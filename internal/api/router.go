package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/files"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/records"
	"github.com/hackgods/clinic-booking/internal/scheduling"
)

type RouterConfig struct {
	Engine       *scheduling.Engine
	Booker       *scheduling.Booker
	Availability *availability.Service
	Appointments *appointment.Service
	Identity     *identity.Service
	Records      *records.Service
	Files        *files.Service

	Gate   *access.Gate
	Tokens *access.TokenIssuer

	TenantScope   TenantScope
	DefaultTenant string

	Health   *HealthHandler
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	CORSOrigins  []string
	RateLimitRPS int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	scope := cfg.TenantScope
	if scope == nil {
		scope = MemoryTenantScope
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))
		r.Use(TenantMiddleware(scope, cfg.DefaultTenant))

		// Identity
		r.Post("/signup", signupHandler(cfg.Identity))
		r.Post("/login", loginHandler(cfg.Identity, cfg.Tokens))
		r.Get("/verify-token", verifyTokenHandler(cfg.Identity))
		r.Get("/doctors", listDoctorsHandler(cfg.Identity, cfg.Gate))

		// Availability and booking
		r.Get("/available-slots", availableSlotsHandler(cfg.Engine, cfg.Gate))
		r.Post("/doctor/availability", setAvailabilityHandler(cfg.Availability, cfg.Gate))
		r.Get("/doctor/availability", listAvailabilityHandler(cfg.Availability, cfg.Gate))
		r.Post("/book-slot", bookSlotHandler(cfg.Booker, cfg.Gate))
		r.Get("/booked-slots", bookedSlotsHandler(cfg.Appointments, cfg.Gate))
		r.Get("/appointment/{id}", getAppointmentHandler(cfg.Appointments, cfg.Gate))
		r.Patch("/appointment/{id}/status", updateStatusHandler(cfg.Appointments, cfg.Gate))

		// Records
		r.Post("/prescriptions", createPrescriptionHandler(cfg.Records, cfg.Gate))
		r.Get("/prescriptions", listPrescriptionsHandler(cfg.Records, cfg.Gate))
		r.Post("/bills", createBillHandler(cfg.Records, cfg.Gate))
		r.Get("/bills", listBillsHandler(cfg.Records, cfg.Gate))

		// Medical files
		r.Post("/medical-files", uploadFileHandler(cfg.Files, cfg.Gate))
		r.Get("/medical-files", listOwnFilesHandler(cfg.Files, cfg.Gate))
		r.Get("/medical-files/shared", listSharedFilesHandler(cfg.Files, cfg.Gate))
		r.Post("/medical-files/{id}/share", shareFileHandler(cfg.Files, cfg.Gate))
		r.Get("/medical-files/{id}/download", downloadFileHandler(cfg.Files, cfg.Gate))
	})

	return r
}
