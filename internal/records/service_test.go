package records

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/identity"
)

func TestCreateBill_ComputesTotal(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	doc, pat := uuid.New(), uuid.New()

	b, err := svc.CreateBill(context.Background(), doc, pat, []BillItem{
		{Name: "Consultation", Quantity: 1, CostCents: 5000},
		{Name: " Bandage ", Quantity: 3, CostCents: 250},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5750), b.TotalCents)
	assert.Equal(t, BillPending, b.Status)
	assert.Equal(t, "Bandage", b.Items[1].Name)
}

func TestCreateBill_Rejects(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	doc, pat := uuid.New(), uuid.New()

	_, err := svc.CreateBill(context.Background(), doc, pat, nil)
	assert.ErrorIs(t, err, ErrNoBillItems)
	_, err = svc.CreateBill(context.Background(), doc, pat, []BillItem{{Name: "x", Quantity: 0, CostCents: 1}})
	assert.ErrorIs(t, err, ErrBadBillItem)
	_, err = svc.CreateBill(context.Background(), doc, pat, []BillItem{{Name: "x", Quantity: 1, CostCents: -1}})
	assert.ErrorIs(t, err, ErrBadBillItem)
	_, err = svc.CreateBill(context.Background(), uuid.Nil, pat, []BillItem{{Name: "x", Quantity: 1}})
	assert.ErrorIs(t, err, ErrMissingParty)
}

func TestPrescriptions_NewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil)
	doc, pat := uuid.New(), uuid.New()

	first, err := svc.CreatePrescription(ctx, doc, pat, []Medicine{{Name: "Ibuprofen", Quantity: 10}})
	require.NoError(t, err)
	second, err := svc.CreatePrescription(ctx, doc, pat, []Medicine{{Name: "Amoxicillin", Quantity: 21, Instructions: "3x daily"}})
	require.NoError(t, err)
	_, err = svc.CreatePrescription(ctx, doc, uuid.New(), []Medicine{{Name: "Other", Quantity: 1}})
	require.NoError(t, err)

	list, err := svc.ListPrescriptions(ctx, pat)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = svc.CreatePrescription(ctx, doc, pat, []Medicine{{Name: "  ", Quantity: 1}})
	assert.ErrorIs(t, err, ErrBadMedicine)
}

func TestRecords_RequirePatient(t *testing.T) {
	ctx := context.Background()
	people := identity.NewService(identity.NewMemoryRepository())
	doc, err := people.Signup(ctx, identity.SignupInput{FirstName: "D", LastName: "R", Email: "d@x.io", Password: "password1", Role: identity.RoleDoctor})
	require.NoError(t, err)

	svc := NewService(NewMemoryRepository(), people)
	_, err = svc.CreateBill(ctx, doc.ID, doc.ID, []BillItem{{Name: "x", Quantity: 1, CostCents: 100}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
