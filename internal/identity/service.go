package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-booking/internal/apperr"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	ErrInvalidRole        = apperr.Validation("role must be doctor or patient")
	ErrInvalidEmail       = apperr.Validation("email must be a valid address")
	ErrWeakPassword       = apperr.Validation("password must be at least 8 characters")
	ErrMissingName        = apperr.Validation("first and last name are required")
)

type SignupInput struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Role       Role
	Speciality string
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Signup registers a doctor or patient. Admins are provisioned out of band.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.FirstName == "" || in.LastName == "" {
		return nil, ErrMissingName
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if in.Role != RoleDoctor && in.Role != RolePatient {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, apperr.Storage("hash password", err)
	}

	u := &User{
		ID:           uuid.New(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
	}
	if in.Role == RoleDoctor && strings.TrimSpace(in.Speciality) != "" {
		sp := strings.TrimSpace(in.Speciality)
		u.Speciality = &sp
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, apperr.Storage("create user", err)
	}
	return u, nil
}

// Login checks the credentials. Unknown email and wrong password look the same to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Storage("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, apperr.Storage("load user", err)
	}
	return u, nil
}

// RequireRole loads id and checks it has role. A user with another role is
// reported as not found for that role.
func (s *Service) RequireRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.NotFound(string(role))
		}
		return nil, err
	}
	if u.Role != role {
		return nil, apperr.NotFound(string(role))
	}
	return u, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]User, error) {
	list, err := s.repo.ListByRole(ctx, RoleDoctor)
	if err != nil {
		return nil, apperr.Storage("list doctors", err)
	}
	return list, nil
}
