// Package access decides who may do what. Every API operation asks the Gate
// before touching a service.
package access

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/apperr"
	"github.com/hackgods/clinic-booking/internal/identity"
)

type Action string

const (
	AvailabilityWrite Action = "availability:write"
	AvailabilityRead  Action = "availability:read"
	SlotsRead         Action = "slots:read"
	DirectoryRead     Action = "directory:read"
	AppointmentBook   Action = "appointment:book"
	AppointmentRead   Action = "appointment:read"
	AppointmentList   Action = "appointment:list"
	AppointmentStatus Action = "appointment:status"
	PrescriptionWrite Action = "prescription:write"
	PrescriptionRead  Action = "prescription:read"
	BillWrite         Action = "bill:write"
	BillRead          Action = "bill:read"
	FileUpload        Action = "file:upload"
	FileShare         Action = "file:share"
	FileRead          Action = "file:read"
)

var ErrForbidden = apperr.Forbidden("You are not allowed to perform this action")

// Actor is the authenticated caller.
type Actor struct {
	UserID   uuid.UUID
	Role     identity.Role
	TenantID string
}

func (a *Actor) Is(role identity.Role) bool {
	return a != nil && a.Role == role
}

// Resource describes what an action touches. Zero fields mean "not applicable".
type Resource struct {
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	SharedWith []uuid.UUID
}

type rule func(a *Actor, r Resource) bool

type Gate struct {
	policy map[Action]rule
}

func NewGate() *Gate {
	return &Gate{policy: map[Action]rule{
		AvailabilityWrite: ownDoctor,
		AvailabilityRead:  ownDoctor,
		SlotsRead:         anyone,
		DirectoryRead:     anyone,
		AppointmentBook:   ownPatient,
		AppointmentRead:   anyOf(ownDoctor, ownPatient, admin),
		AppointmentList:   anyOf(ownDoctor, ownPatient, admin),
		AppointmentStatus: anyOf(ownDoctor, admin),
		PrescriptionWrite: role(identity.RoleDoctor),
		PrescriptionRead:  anyOf(ownPatient, role(identity.RoleDoctor), admin),
		BillWrite:         role(identity.RoleDoctor),
		BillRead:          anyOf(ownPatient, ownDoctor, admin),
		FileUpload:        ownPatient,
		FileShare:         ownPatient,
		FileRead:          anyOf(ownPatient, sharedDoctor),
	}}
}

// Authorize returns nil when actor may perform action on r, an Unauthorized
// error without an actor and a Forbidden error otherwise.
func (g *Gate) Authorize(actor *Actor, action Action, r Resource) error {
	if actor == nil || actor.UserID == uuid.Nil {
		return ErrMissingToken
	}
	allow, ok := g.policy[action]
	if !ok || !allow(actor, r) {
		return ErrForbidden
	}
	return nil
}

func anyone(*Actor, Resource) bool { return true }

func admin(a *Actor, _ Resource) bool { return a.Role == identity.RoleAdmin }

func role(want identity.Role) rule {
	return func(a *Actor, _ Resource) bool { return a.Role == want }
}

func ownDoctor(a *Actor, r Resource) bool {
	return a.Role == identity.RoleDoctor && r.DoctorID == a.UserID
}

func ownPatient(a *Actor, r Resource) bool {
	return a.Role == identity.RolePatient && r.PatientID == a.UserID
}

func sharedDoctor(a *Actor, r Resource) bool {
	return a.Role == identity.RoleDoctor && slices.Contains(r.SharedWith, a.UserID)
}

func anyOf(rules ...rule) rule {
	return func(a *Actor, r Resource) bool {
		for _, allow := range rules {
			if allow(a, r) {
				return true
			}
		}
		return false
	}
}

type actorKey struct{}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the authenticated caller, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey{}).(*Actor)
	return a
}
