package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

type stubBooked map[string]struct{}

func (s stubBooked) BookedSlots(context.Context, uuid.UUID, time.Time) (map[string]struct{}, error) {
	return s, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSetAvailability_Upserts(t *testing.T) {
	ctx := context.Background()
	log := events.NewMemoryLog()
	svc := NewService(NewMemoryRepository(), nil, log, nil, Options{})
	doc := uuid.New()

	_, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"09:00 AM", "10:00 AM"})
	require.NoError(t, err)

	a, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"11:00 AM"})
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00 AM"}, a.Slots)

	got, err := svc.GetAvailability(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00 AM"}, got.Slots)
	assert.Len(t, log.Events(events.AvailabilitySet), 2)
}

func TestSetAvailability_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil, nil, Options{})
	doc := uuid.New()
	slots := []string{"09:00 AM", "10:00 AM"}

	first, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), slots)
	require.NoError(t, err)
	second, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), slots)
	require.NoError(t, err)

	assert.Equal(t, first.Slots, second.Slots)
	list, err := svc.ListAvailability(ctx, doc, day("2024-06-01"), day("2024-06-01"))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSetAvailability_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil, nil, Options{})
	doc := uuid.New()

	tests := []struct {
		name  string
		doc   uuid.UUID
		date  time.Time
		slots []string
		want  error
	}{
		{"no doctor", uuid.Nil, day("2024-06-01"), []string{"a"}, ErrMissingDoctor},
		{"no date", doc, time.Time{}, []string{"a"}, ErrMissingDate},
		{"no slots", doc, day("2024-06-01"), nil, ErrNoSlots},
		{"empty label", doc, day("2024-06-01"), []string{"09:00 AM", ""}, ErrEmptySlotLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetAvailability(ctx, tt.doc, tt.date, tt.slots)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestSetAvailability_DuplicatesKept(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil, nil, Options{})

	a, err := svc.SetAvailability(context.Background(), uuid.New(), day("2024-06-01"), []string{"09:00 AM", "09:00 AM", "10:00 AM"})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "09:00 AM", "10:00 AM"}, a.Slots)
	assert.Equal(t, []string{"09:00 AM"}, a.DuplicateLabels())
}

func TestSetAvailability_OrphaningBookedSlot(t *testing.T) {
	ctx := context.Background()
	doc := uuid.New()
	booked := stubBooked{"09:00 AM": {}}

	t.Run("allowed by default", func(t *testing.T) {
		svc := NewService(NewMemoryRepository(), booked, nil, nil, Options{})
		_, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"10:00 AM"})
		assert.NoError(t, err)
	})

	t.Run("blocked when configured", func(t *testing.T) {
		svc := NewService(NewMemoryRepository(), booked, nil, nil, Options{BlockOrphaningSlots: true})
		_, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"10:00 AM"})
		assert.ErrorIs(t, err, ErrBookedSlotRemoved)

		_, err = svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"09:00 AM", "10:00 AM"})
		assert.NoError(t, err)
	})
}

type recordingGuard struct {
	inDay   bool
	labels  []string
	guarded bool
}

func (g *recordingGuard) GuardDay(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	g.inDay = true
	defer func() { g.inDay = false }()
	return fn(ctx)
}

func (g *recordingGuard) GuardSlots(ctx context.Context, _ uuid.UUID, _ time.Time, labels []string, fn func(context.Context) error) error {
	if !g.inDay {
		return errors.New("slot locks taken outside the day lock")
	}
	g.labels = labels
	g.guarded = true
	defer func() { g.guarded = false }()
	return fn(ctx)
}

// guardedBooked fails unless it is consulted while the guard holds the slot locks.
type guardedBooked struct {
	guard  *recordingGuard
	booked map[string]struct{}
}

func (b guardedBooked) BookedSlots(context.Context, uuid.UUID, time.Time) (map[string]struct{}, error) {
	if !b.guard.guarded {
		return nil, errors.New("orphan check ran unguarded")
	}
	return b.booked, nil
}

func TestSetAvailability_OrphanCheckRunsUnderGuard(t *testing.T) {
	ctx := context.Background()
	doc := uuid.New()
	guard := &recordingGuard{}
	repo := NewMemoryRepository()
	svc := NewService(repo, guardedBooked{guard: guard, booked: map[string]struct{}{"09:00 AM": {}}}, nil, nil,
		Options{BlockOrphaningSlots: true, Guard: guard})

	_, err := svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"09:00 AM", "10:00 AM", "11:00 AM"})
	require.NoError(t, err)
	assert.Empty(t, guard.labels, "first declaration drops nothing")

	_, err = svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"10:00 AM"})
	assert.ErrorIs(t, err, ErrBookedSlotRemoved)
	assert.Equal(t, []string{"09:00 AM", "11:00 AM"}, guard.labels)

	a, err := repo.Get(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM", "11:00 AM"}, a.Slots, "rejected update leaves the declaration alone")

	_, err = svc.SetAvailability(ctx, doc, day("2024-06-01"), []string{"09:00 AM", "10:00 AM"})
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00 AM"}, guard.labels)
}

func TestGetAvailability_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil, nil, Options{})

	_, err := svc.GetAvailability(context.Background(), uuid.New(), day("2024-06-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "No availability found", err.Error())
}

func TestMemoryRepository_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	doc := uuid.New()
	north := tenant.WithID(context.Background(), "north")
	south := tenant.WithID(context.Background(), "south")

	_, err := repo.Upsert(north, doc, day("2024-06-01"), []string{"09:00 AM"})
	require.NoError(t, err)

	_, err = repo.Get(south, doc, day("2024-06-01"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAvailability_OrderedRange(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil, nil, Options{})
	doc := uuid.New()

	for _, d := range []string{"2024-06-03", "2024-06-01", "2024-06-10"} {
		_, err := svc.SetAvailability(ctx, doc, day(d), []string{"09:00 AM"})
		require.NoError(t, err)
	}

	list, err := svc.ListAvailability(ctx, doc, day("2024-06-01"), day("2024-06-05"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, day("2024-06-01"), list[0].Date)
	assert.Equal(t, day("2024-06-03"), list[1].Date)

	_, err = svc.ListAvailability(ctx, doc, day("2024-06-05"), day("2024-06-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)
}
