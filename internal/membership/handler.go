package membership

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"roomledger/internal/middleware"
	"roomledger/pkg/journal"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the public membership routes. Member lookup stays public
// so the ledger service can check buyer eligibility without a session.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/members", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Get("/members/{memberID}", h.handleGetMember)
}

// MountAuthenticated registers the routes that need a session.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Get("/session", h.handleSession)
	r.Post("/logout", h.handleLogout)
	r.Delete("/members/{memberID}", h.handleDeactivate)
}

func writeMemberError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, journal.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		GroupID  string `json:"group_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	groupID := uuid.Nil
	if req.GroupID != "" {
		parsed, err := uuid.Parse(req.GroupID)
		if err != nil {
			http.Error(w, "invalid group ID", http.StatusBadRequest)
			return
		}
		groupID = parsed
	}

	member, err := h.service.RegisterMember(r.Context(), req.Email, req.Name, req.Password, groupID)
	if err != nil {
		writeMemberError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, token, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeMemberError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"member": member,
		"token":  token,
	})
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		writeMemberError(w, err)
		return
	}

	json.NewEncoder(w).Encode(member)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.GetMember(r.Context(), middleware.MemberID(r.Context()))
	if err != nil {
		writeMemberError(w, err)
		return
	}

	json.NewEncoder(w).Encode(member)
}

// Sessions are stateless JWTs; logout just acknowledges the client dropping
// its token.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return
	}
	if middleware.MemberID(r.Context()) != id {
		http.Error(w, "you can only deactivate your own membership", http.StatusForbidden)
		return
	}

	if err := h.service.DeactivateMember(r.Context(), id); err != nil {
		writeMemberError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
