// Package events records what happened to appointments and availability.
// Every event lands in the tenant's event_logs table and, when a broker is
// configured, is also published to RabbitMQ.
package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentBooked        = "APPOINTMENT_BOOKED"
	AppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	AvailabilitySet          = "AVAILABILITY_SET"
)

type Event struct {
	Type        string         `json:"type"`
	Tenant      string         `json:"tenant"`
	AggregateID uuid.UUID      `json:"aggregate_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Fanout sends each event to every recorder and joins their failures.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryLog keeps the most recent events in process. It is the event log of
// STORE=memory; once full, the oldest events are dropped.
type MemoryLog struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// DefaultMemoryLogLimit bounds a MemoryLog created by NewMemoryLog.
const DefaultMemoryLogLimit = 10_000

func NewMemoryLog() *MemoryLog {
	return NewBoundedMemoryLog(DefaultMemoryLogLimit)
}

// NewBoundedMemoryLog keeps at most limit events; limit <= 0 keeps everything.
func NewBoundedMemoryLog(limit int) *MemoryLog {
	return &MemoryLog{limit: limit}
}

func (m *MemoryLog) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = slices.Delete(m.events, 0, len(m.events)-m.limit)
	}
	return nil
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (m *MemoryLog) Events(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, ev := range m.events {
		if eventType == "" || ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
