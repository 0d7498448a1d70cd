package scheduling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/calendar"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// ErrLockNotAcquired is returned by a Locker that could not get the slot within its wait.
var ErrLockNotAcquired = redisclient.ErrLockNotAcquired

// Locker runs fn while holding an exclusive lock on key.
// *redisclient.SlotLocker and *LocalLocker implement it.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey identifies one bookable slot across tenants.
func SlotKey(tenantID string, doctorID uuid.UUID, date time.Time, label string) string {
	return strings.Join([]string{tenantID, doctorID.String(), calendar.Format(date), label}, ":")
}

// DayKey identifies a doctor's whole day; availability writes serialize on it.
func DayKey(tenantID string, doctorID uuid.UUID, date time.Time) string {
	return strings.Join([]string{tenantID, doctorID.String(), calendar.Format(date)}, ":")
}

// LocalLocker is an in-process keyed mutex for single-instance deployments and tests.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		wait:  wait,
		slots: make(map[string]*localSlot),
	}
}

func (l *LocalLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := l.ref(key)
	defer l.unref(key)

	if err := l.acquire(ctx, s); err != nil {
		return err
	}
	defer func() { <-s.sem }()

	return fn(ctx)
}

func (l *LocalLocker) acquire(ctx context.Context, s *localSlot) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}
	if l.wait <= 0 {
		return ErrLockNotAcquired
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return fmt.Errorf("wait for slot lock: %w", ctx.Err())
	}
}

func (l *LocalLocker) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
