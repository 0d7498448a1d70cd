package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBooking(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.ObserveBooking(OutcomeBooked, 3*time.Millisecond)
	m.ObserveBooking(OutcomeConflict, time.Millisecond)
	m.ObserveBooking(OutcomeConflict, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues(OutcomeBooked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Bookings.WithLabelValues(OutcomeConflict)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking(OutcomeBooked, time.Millisecond)
		m.ObserveSlotQuery("ok")
		m.ObserveAvailabilityUpdate()
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
}
