package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

func TestCompleteTenants(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	log := events.NewMemoryLog()
	svc := appointment.NewService(repo, log)
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	book := func(tenantID string, date time.Time) *appointment.Appointment {
		ctx := tenant.WithID(context.Background(), tenantID)
		a, err := repo.CreateBooked(ctx, uuid.New(), uuid.New(), date, "09:00 AM")
		require.NoError(t, err)
		return a
	}
	pastNorth := book("north", today.AddDate(0, 0, -2))
	pastSouth := book("south", today.AddDate(0, 0, -1))
	upcoming := book("north", today)

	scope := func(ctx context.Context, id string, fn func(ctx context.Context) error) error {
		if id == "broken" {
			return errors.New("tenant schema missing")
		}
		return api.MemoryTenantScope(ctx, id, fn)
	}

	total := completeTenants(context.Background(), zerolog.Nop(), []string{"north", "broken", "south"}, scope, svc, today)
	assert.Equal(t, 2, total, "a failing tenant does not stop the others")

	status := func(tenantID string, id uuid.UUID) appointment.Status {
		a, err := repo.GetByID(tenant.WithID(context.Background(), tenantID), id)
		require.NoError(t, err)
		return a.Status
	}
	assert.Equal(t, appointment.StatusCompleted, status("north", pastNorth.ID))
	assert.Equal(t, appointment.StatusCompleted, status("south", pastSouth.ID))
	assert.Equal(t, appointment.StatusBooked, status("north", upcoming.ID), "today is not in the past")
	assert.Len(t, log.Events(events.AppointmentStatusChanged), 2)

	total = completeTenants(context.Background(), zerolog.Nop(), []string{"north", "south"}, scope, svc, today)
	assert.Zero(t, total, "a second run finds nothing left")
}
