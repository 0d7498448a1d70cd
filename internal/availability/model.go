package availability

import (
	"time"

	"github.com/google/uuid"
)

// Availability is a doctor's declared bookable slots for one calendar day.
type Availability struct {
	DoctorID  uuid.UUID
	Date      time.Time
	Slots     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DuplicateLabels returns every label declared more than once, in first-seen order.
func (a *Availability) DuplicateLabels() []string {
	seen := make(map[string]int, len(a.Slots))
	var dups []string
	for _, s := range a.Slots {
		seen[s]++
		if seen[s] == 2 {
			dups = append(dups, s)
		}
	}
	return dups
}

// Declares reports whether label is one of the declared slots.
func (a *Availability) Declares(label string) bool {
	for _, s := range a.Slots {
		if s == label {
			return true
		}
	}
	return false
}
