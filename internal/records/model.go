package records

import (
	"time"

	"github.com/google/uuid"
)

type Medicine struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

type Prescription struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Medicines []Medicine
	CreatedAt time.Time
}

type BillStatus string

const (
	BillPending   BillStatus = "pending"
	BillPaid      BillStatus = "paid"
	BillCancelled BillStatus = "cancelled"
)

// BillItem costs are in cents.
type BillItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	CostCents int64  `json:"costCents"`
}

type Bill struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	Items      []BillItem
	TotalCents int64
	Status     BillStatus
	CreatedAt  time.Time
}

// Total sums cost times quantity over items.
func Total(items []BillItem) int64 {
	var total int64
	for _, it := range items {
		total += it.CostCents * int64(it.Quantity)
	}
	return total
}
