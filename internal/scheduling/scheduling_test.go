package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

type fixture struct {
	avail   *availability.MemoryRepository
	appts   *appointment.MemoryRepository
	engine  *Engine
	booker  *Booker
	setter  *availability.Service
	events  *events.MemoryLog
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, locker Locker, opts BookingOptions) *fixture {
	t.Helper()
	f := &fixture{
		avail:   availability.NewMemoryRepository(),
		appts:   appointment.NewMemoryRepository(),
		events:  events.NewMemoryLog(),
		metrics: metrics.New(prometheus.NewRegistry(), "test"),
	}
	if locker == nil {
		locker = NewLocalLocker(time.Second)
	}
	f.engine = NewEngine(f.avail, f.appts, f.metrics)
	f.booker = NewBooker(f.engine, f.appts, locker, nil, f.events, f.metrics, opts)
	f.setter = availability.NewService(f.avail, f.engine, f.events, f.metrics, availability.Options{})
	return f
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func (f *fixture) declare(t *testing.T, doc uuid.UUID, d string, slots ...string) {
	t.Helper()
	_, err := f.setter.SetAvailability(context.Background(), doc, day(d), slots)
	require.NoError(t, err)
}

func (f *fixture) book(doc, patient uuid.UUID, d, label string) (*appointment.Appointment, error) {
	return f.booker.BookSlot(context.Background(), BookingRequest{
		DoctorID:  doc,
		PatientID: patient,
		Date:      day(d),
		SlotLabel: label,
	})
}

func TestComputeAvailableSlots_SubtractsBookedKeepingOrder(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "03:00 PM", "09:00 AM", "11:00 AM", "10:00 AM", "01:00 PM")

	for _, label := range []string{"11:00 AM", "03:00 PM"} {
		_, err := f.book(doc, uuid.New(), "2024-06-01", label)
		require.NoError(t, err)
	}

	slots, err := f.engine.ComputeAvailableSlots(context.Background(), doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM", "01:00 PM"}, slots)
}

func TestComputeAvailableSlots_NotFoundIsNotEmpty(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})

	slots, err := f.engine.ComputeAvailableSlots(context.Background(), uuid.New(), day("2024-06-01"))
	assert.Nil(t, slots)
	assert.ErrorIs(t, err, availability.ErrNotFound)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SlotQueries.WithLabelValues("not_found")))
}

func TestComputeAvailableSlots_AllBookedIsEmptyNotError(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM")
	_, err := f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	require.NoError(t, err)

	slots, err := f.engine.ComputeAvailableSlots(context.Background(), doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestComputeAvailableSlots_ExactLabelMatch(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM", "09:00 AM", "10:00 AM")

	_, err := f.book(doc, uuid.New(), "2024-06-01", "9:00 AM")
	require.NoError(t, err)

	slots, err := f.engine.ComputeAvailableSlots(context.Background(), doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "09:00 AM", "10:00 AM"}, slots, "differently spelled label does not match")

	_, err = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	require.NoError(t, err)
	slots, err = f.engine.ComputeAvailableSlots(context.Background(), doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00 AM"}, slots, "a booked label removes every duplicate of it")
}

func TestComputeAvailableSlots_Validation(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})

	_, err := f.engine.ComputeAvailableSlots(context.Background(), uuid.Nil, day("2024-06-01"))
	assert.ErrorIs(t, err, ErrMissingDoctor)
	_, err = f.engine.ComputeAvailableSlots(context.Background(), uuid.New(), time.Time{})
	assert.ErrorIs(t, err, ErrMissingDate)
}

func TestBookSlot_ConflictLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})
	doc, first := uuid.New(), uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM")

	appt, err := f.book(doc, first, "2024-06-01", "09:00 AM")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, appt.Status)

	before, err := f.appts.ListByDoctor(context.Background(), doc, 0, 0)
	require.NoError(t, err)

	_, err = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "This slot is already booked", err.Error())

	after, err := f.appts.ListByDoctor(context.Background(), doc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, f.events.Events(events.AppointmentBooked), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Bookings.WithLabelValues(metrics.OutcomeConflict)))
}

func TestBookSlot_Validation(t *testing.T) {
	f := newFixture(t, nil, BookingOptions{})
	doc, patient := uuid.New(), uuid.New()

	tests := []struct {
		name string
		req  BookingRequest
		want error
	}{
		{"doctor", BookingRequest{PatientID: patient, Date: day("2024-06-01"), SlotLabel: "a"}, ErrMissingDoctor},
		{"patient", BookingRequest{DoctorID: doc, Date: day("2024-06-01"), SlotLabel: "a"}, ErrMissingPatient},
		{"date", BookingRequest{DoctorID: doc, PatientID: patient, SlotLabel: "a"}, ErrMissingDate},
		{"slot", BookingRequest{DoctorID: doc, PatientID: patient, Date: day("2024-06-01")}, ErrMissingSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.booker.BookSlot(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestBookSlot_UndeclaredSlot(t *testing.T) {
	doc := uuid.New()

	t.Run("allowed by default", func(t *testing.T) {
		f := newFixture(t, nil, BookingOptions{})
		_, err := f.book(doc, uuid.New(), "2024-06-01", "07:00 AM")
		assert.NoError(t, err)
	})

	t.Run("rejected when required", func(t *testing.T) {
		f := newFixture(t, nil, BookingOptions{RequireDeclaredSlot: true})
		_, err := f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
		assert.ErrorIs(t, err, ErrSlotNotDeclared)

		f.declare(t, doc, "2024-06-01", "09:00 AM")
		_, err = f.book(doc, uuid.New(), "2024-06-01", "07:00 AM")
		assert.ErrorIs(t, err, ErrSlotNotDeclared)
		_, err = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
		assert.NoError(t, err)
	})
}

func TestBookSlot_ChecksParticipants(t *testing.T) {
	ctx := context.Background()
	people := identity.NewService(identity.NewMemoryRepository())
	doc, err := people.Signup(ctx, identity.SignupInput{FirstName: "D", LastName: "R", Email: "d@x.io", Password: "password1", Role: identity.RoleDoctor})
	require.NoError(t, err)
	pat, err := people.Signup(ctx, identity.SignupInput{FirstName: "P", LastName: "T", Email: "p@x.io", Password: "password1", Role: identity.RolePatient})
	require.NoError(t, err)

	f := newFixture(t, nil, BookingOptions{})
	f.booker.people = people

	_, err = f.book(pat.ID, pat.ID, "2024-06-01", "09:00 AM")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "patient is not a doctor")

	_, err = f.book(doc.ID, uuid.New(), "2024-06-01", "09:00 AM")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown patient")

	_, err = f.book(doc.ID, pat.ID, "2024-06-01", "09:00 AM")
	assert.NoError(t, err)
}

func assertExactlyOneWinner(t *testing.T, f *fixture, doc uuid.UUID, n int) {
	t.Helper()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	booked, err := f.appts.ListBookedForDoctorDate(context.Background(), doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestBookSlot_ConcurrentLocalLocker(t *testing.T) {
	f := newFixture(t, NewLocalLocker(5*time.Second), BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM", "10:00 AM")

	assertExactlyOneWinner(t, f, doc, 50)
}

func TestBookSlot_ConcurrentRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, redisclient.NewRedisSlotLocker(client, 5*time.Second, 5*time.Second), BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM")

	assertExactlyOneWinner(t, f, doc, 20)
}

type noLock struct{}

func (noLock) WithSlotLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestBookSlot_StoreGuardHoldsWithoutLock(t *testing.T) {
	f := newFixture(t, noLock{}, BookingOptions{})
	doc := uuid.New()

	assertExactlyOneWinner(t, f, doc, 50)
}

type busyLock struct{}

func (busyLock) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return ErrLockNotAcquired
}

func TestBookSlot_BusyLockIsConflict(t *testing.T) {
	f := newFixture(t, busyLock{}, BookingOptions{})

	_, err := f.book(uuid.New(), uuid.New(), "2024-06-01", "09:00 AM")
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestLocalLocker_WaitsThenGivesUp(t *testing.T) {
	l := NewLocalLocker(30 * time.Millisecond)
	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithSlotLock(ctx, "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := l.WithSlotLock(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	assert.NoError(t, l.WithSlotLock(ctx, "other", func(context.Context) error { return nil }))

	close(release)
	assert.Eventually(t, func() bool {
		return l.WithSlotLock(ctx, "k", func(context.Context) error { return nil }) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestLocalLocker_ContextEndsWhileWaiting(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)
	held := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = l.WithSlotLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.WithSlotLock(ctx, "k", func(context.Context) error {
		t.Fatal("must not enter critical section")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
}

func TestBookSlot_ExpiredWaitIsNotContention(t *testing.T) {
	locker := NewLocalLocker(5 * time.Second)
	f := newFixture(t, locker, BookingOptions{})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM")

	held := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		key := SlotKey(tenant.FromContext(context.Background()), doc, day("2024-06-01"), "09:00 AM")
		_ = locker.WithSlotLock(context.Background(), key, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.booker.BookSlot(ctx, BookingRequest{
		DoctorID:  doc,
		PatientID: uuid.New(),
		Date:      day("2024-06-01"),
		SlotLabel: "09:00 AM",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotBeingBooked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperr.Is(err, apperr.KindStorage))
}

func TestScenario_DeclareQueryBookConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, BookingOptions{})
	doc := uuid.New()

	f.declare(t, doc, "2024-06-01", "09:00 AM", "10:00 AM")

	slots, err := f.engine.ComputeAvailableSlots(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM"}, slots)

	_, err = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	require.NoError(t, err)

	slots, err = f.engine.ComputeAvailableSlots(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00 AM"}, slots)

	_, err = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestScenario_ShrinkingAvailabilityOrphansBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, BookingOptions{})
	doc := uuid.New()

	f.declare(t, doc, "2024-06-01", "09:00 AM", "10:00 AM")
	early, err := f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
	require.NoError(t, err)
	_, err = f.book(doc, uuid.New(), "2024-06-01", "10:00 AM")
	require.NoError(t, err)

	// 09:00 AM is dropped although it is booked
	f.declare(t, doc, "2024-06-01", "10:00 AM")

	slots, err := f.engine.ComputeAvailableSlots(ctx, doc, day("2024-06-01"))
	require.NoError(t, err, "a declaration exists, so this is not NotFound")
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	got, err := f.appts.GetByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, got.Status, "the orphaned booking survives the update")
	assert.Equal(t, "09:00 AM", got.SlotLabel)

	booked, err := f.appts.ListBookedForDoctorDate(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Len(t, booked, 2)
}

func TestSetAvailability_OrphanCheckWaitsForInflightBooking(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker(5 * time.Second)
	f := newFixture(t, locker, BookingOptions{})
	setter := availability.NewService(f.avail, f.engine, nil, nil, availability.Options{
		BlockOrphaningSlots: true,
		Guard:               f.booker,
	})
	doc := uuid.New()
	f.declare(t, doc, "2024-06-01", "09:00 AM", "10:00 AM")

	// A booking of 09:00 AM holds its slot lock until released
	held := make(chan struct{})
	release := make(chan struct{})
	booked := make(chan error, 1)
	go func() {
		key := SlotKey(tenant.FromContext(ctx), doc, day("2024-06-01"), "09:00 AM")
		booked <- locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
			close(held)
			<-release
			_, err := f.appts.CreateBooked(ctx, doc, uuid.New(), day("2024-06-01"), "09:00 AM")
			return err
		})
	}()
	<-held

	shrunk := make(chan error, 1)
	go func() {
		_, err := setter.SetAvailability(ctx, doc, day("2024-06-01"), []string{"10:00 AM"})
		shrunk <- err
	}()

	select {
	case err := <-shrunk:
		t.Fatalf("availability replaced while 09:00 AM was being booked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-booked)
	assert.ErrorIs(t, <-shrunk, availability.ErrBookedSlotRemoved)

	a, err := f.avail.Get(ctx, doc, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "10:00 AM"}, a.Slots)
}

func TestSetAvailability_GuardedShrinkNeverOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(5*time.Second), BookingOptions{RequireDeclaredSlot: true})
	setter := availability.NewService(f.avail, f.engine, nil, nil, availability.Options{
		BlockOrphaningSlots: true,
		Guard:               f.booker,
	})

	for i := 0; i < 50; i++ {
		doc := uuid.New()
		f.declare(t, doc, "2024-06-01", "09:00 AM", "10:00 AM")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.book(doc, uuid.New(), "2024-06-01", "09:00 AM")
		}()
		go func() {
			defer wg.Done()
			_, _ = setter.SetAvailability(ctx, doc, day("2024-06-01"), []string{"10:00 AM"})
		}()
		wg.Wait()

		a, err := f.avail.Get(ctx, doc, day("2024-06-01"))
		require.NoError(t, err)
		list, err := f.appts.ListBookedForDoctorDate(ctx, doc, day("2024-06-01"))
		require.NoError(t, err)
		for _, appt := range list {
			assert.True(t, a.Declares(appt.SlotLabel), "booked %s is not declared", appt.SlotLabel)
		}
	}
}

func TestSetAvailability_GuardBusyIsConflict(t *testing.T) {
	f := newFixture(t, busyLock{}, BookingOptions{})
	doc := uuid.New()
	_, err := f.avail.Upsert(context.Background(), doc, day("2024-06-01"), []string{"09:00 AM", "10:00 AM"})
	require.NoError(t, err)

	setter := availability.NewService(f.avail, f.engine, nil, nil, availability.Options{
		BlockOrphaningSlots: true,
		Guard:               f.booker,
	})
	_, err = setter.SetAvailability(context.Background(), doc, day("2024-06-01"), []string{"10:00 AM"})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestGuardSlots_LocksEachLabelOnce(t *testing.T) {
	locker := &recordingLock{}
	f := newFixture(t, locker, BookingOptions{})
	doc := uuid.New()
	ctx := tenant.WithID(context.Background(), "north")

	ran := false
	err := f.booker.GuardSlots(ctx, doc, day("2024-06-01"), []string{"10:00 AM", "09:00 AM", "10:00 AM"}, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{
		SlotKey("north", doc, day("2024-06-01"), "09:00 AM"),
		SlotKey("north", doc, day("2024-06-01"), "10:00 AM"),
	}, locker.keys)
}

type recordingLock struct {
	keys []string
}

func (l *recordingLock) WithSlotLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

func TestSlotKey(t *testing.T) {
	doc := uuid.MustParse("6f1c2a8e-0000-4000-8000-000000000001")
	assert.Equal(t, "north:6f1c2a8e-0000-4000-8000-000000000001:2024-06-01:09:00 AM",
		SlotKey("north", doc, day("2024-06-01"), "09:00 AM"))
}
