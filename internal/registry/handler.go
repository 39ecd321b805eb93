package registry

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

// Mount registers the registry routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/groups/{groupID}/items", h.handleAddItem)
	r.Get("/groups/{groupID}/items", h.handleListItems)
	r.Put("/items/{itemID}", h.handleEditItem)
	r.Delete("/items/{itemID}", h.handleDeleteItem)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidState), errors.Is(err, journal.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// groupFromRequest parses the groupID route param and enforces that it
// matches the caller's session group.
func groupFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	if middleware.GroupID(r.Context()) != groupID {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return uuid.Nil, false
	}
	return groupID, true
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string `json:"name"`
		Amount int    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.service.AddItem(r.Context(), groupID, req.Name, req.Amount, middleware.MemberID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	includeBasket := r.URL.Query().Get("include") == "basket"
	items, err := h.service.ListActiveItems(r.Context(), groupID, includeBasket)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []*Item{}
	}

	json.NewEncoder(w).Encode(items)
}

func (h *Handler) handleEditItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "invalid item ID", http.StatusBadRequest)
		return
	}

	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if item.GroupID != middleware.GroupID(r.Context()) {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return
	}

	var req struct {
		Name   string `json:"name"`
		Amount int    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.EditItem(r.Context(), itemID, req.Name, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "invalid item ID", http.StatusBadRequest)
		return
	}

	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		// Deleting an item that no longer exists stays idempotent.
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeServiceError(w, err)
		return
	}
	if item.GroupID != middleware.GroupID(r.Context()) {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return
	}

	if err := h.service.DeleteItem(r.Context(), itemID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
