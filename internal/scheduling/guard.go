package scheduling

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

// GuardDay runs fn while no other guarded availability write for the doctor
// and date is running.
func (b *Booker) GuardDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := DayKey(tenant.FromContext(ctx), doctorID, calendar.Normalize(date))
	return lockError(b.locker.WithSlotLock(ctx, key, fn))
}

// GuardSlots runs fn while holding the booking lock of every label, so no
// booking for those labels can start or finish until fn returns. Locks are
// taken in sorted order.
func (b *Booker) GuardSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, labels []string, fn func(ctx context.Context) error) error {
	tenantID := tenant.FromContext(ctx)
	date = calendar.Normalize(date)

	keys := make([]string, 0, len(labels))
	for _, label := range labels {
		keys = append(keys, SlotKey(tenantID, doctorID, date, label))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	return lockError(b.lockAll(ctx, keys, fn))
}

func (b *Booker) lockAll(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return b.locker.WithSlotLock(ctx, keys[0], func(ctx context.Context) error {
		return b.lockAll(ctx, keys[1:], fn)
	})
}
