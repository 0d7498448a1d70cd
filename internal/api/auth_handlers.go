package api

import (
	"net/http"

	"github.com/hackgods/clinic-booking/internal/access"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/tenant"
)

func signupHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		u, err := svc.Signup(r.Context(), identity.SignupInput{
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Password:   req.Password,
			Role:       identity.Role(req.Role),
			Speciality: req.Speciality,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "User registered successfully",
			"user":    toUser(u),
		})
	}
}

func loginHandler(svc *identity.Service, tokens *access.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		u, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, expires, err := tokens.Issue(u, tenant.FromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"token":     token,
			"expiresAt": expires,
			"user":      toUser(u),
		})
	}
}

func verifyTokenHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := access.ActorFromContext(r.Context())
		if actor == nil {
			writeError(w, r, access.ErrMissingToken)
			return
		}

		u, err := svc.Get(r.Context(), actor.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    toUser(u),
		})
	}
}

func listDoctorsHandler(svc *identity.Service, gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gate.Authorize(access.ActorFromContext(r.Context()), access.DirectoryRead, access.Resource{}); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := svc.ListDoctors(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]UserResponse, 0, len(list))
		for i := range list {
			out = append(out, toUser(&list[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"doctors": out,
		})
	}
}
