package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/logging"
)

// DefaultSlots is the day a seeded doctor declares.
var DefaultSlots = []string{"09:00 AM", "10:00 AM", "11:00 AM", "01:00 PM", "03:00 PM"}

var specialities = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seedConfig struct {
	Tenant   string
	Doctors  int
	Patients int
	Days     int
	Password string
}

// seed creates doctors and patients with predictable logins
// (doctorN@seed.clinic, patientN@seed.clinic) and declares availability for
// every doctor over the next days.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "json", os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout).With().Str("service", "seed").Logger()

	if cfg.Store != config.StorePostgres {
		logger.Fatal().Msg("seed needs STORE=postgres")
	}

	sc := seedConfig{
		Tenant:   getEnv("SEED_TENANT", cfg.DefaultTenant),
		Doctors:  getInt("SEED_DOCTORS", 20),
		Patients: getInt("SEED_PATIENTS", 200),
		Days:     getInt("SEED_DAYS", 14),
		Password: getEnv("SEED_PASSWORD", "password123"),
	}
	logger.Info().
		Str("tenant", sc.Tenant).
		Int("doctors", sc.Doctors).
		Int("patients", sc.Patients).
		Int("days", sc.Days).
		Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PGMaxConns,
		MinConns: cfg.PGMinConns,
		AppName:  "seed",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.EnsureTenant(ctx, pool, sc.Tenant); err != nil {
		logger.Fatal().Err(err).Msg("ensure tenant")
	}

	people := identity.NewService(identity.NewPgRepository(pool))
	avail := availability.NewService(availability.NewPgRepository(pool), nil, nil, nil, availability.Options{})

	ctx = logging.WithContext(ctx, logger)
	err = db.WithTenantConn(ctx, pool, sc.Tenant, func(ctx context.Context) error {
		doctors, err := seedUsers(ctx, logger, people, identity.RoleDoctor, sc.Doctors, sc.Password)
		if err != nil {
			return fmt.Errorf("seed doctors: %w", err)
		}
		if _, err := seedUsers(ctx, logger, people, identity.RolePatient, sc.Patients, sc.Password); err != nil {
			return fmt.Errorf("seed patients: %w", err)
		}
		return seedAvailability(ctx, logger, avail, doctors, sc.Days)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}

	logger.Info().Msg("seed complete")
}

// seedUsers signs up count users of role, skipping ones that already exist,
// and returns every user of that role in the tenant.
func seedUsers(ctx context.Context, logger zerolog.Logger, people *identity.Service, role identity.Role, count int, password string) ([]identity.User, error) {
	created := 0
	for i := 1; i <= count; i++ {
		in := identity.SignupInput{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     fmt.Sprintf("%s%d@seed.clinic", role, i),
			Password:  password,
			Role:      role,
		}
		if role == identity.RoleDoctor {
			in.Speciality = specialities[gofakeit.Number(0, len(specialities)-1)]
		}

		_, err := people.Signup(ctx, in)
		if errors.Is(err, identity.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		created++
	}
	logger.Info().Str("role", string(role)).Int("created", created).Int("requested", count).Msg("users seeded")

	if role != identity.RoleDoctor {
		return nil, nil
	}
	return people.ListDoctors(ctx)
}

func seedAvailability(ctx context.Context, logger zerolog.Logger, avail *availability.Service, doctors []identity.User, days int) error {
	today := calendar.Today(time.Now())
	for _, d := range doctors {
		for day := 0; day < days; day++ {
			date := today.AddDate(0, 0, day)
			if date.Weekday() == time.Sunday {
				continue
			}
			if _, err := avail.SetAvailability(ctx, d.ID, date, DefaultSlots); err != nil {
				return fmt.Errorf("availability for %s on %s: %w", d.ID, calendar.Format(date), err)
			}
		}
	}
	logger.Info().Int("doctors", len(doctors)).Int("days", days).Msg("availability seeded")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
