package basket

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"roomledger/internal/middleware"
	"roomledger/internal/registry"
	"roomledger/pkg/journal"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the basket transition routes.
func (h *Handler) Mount(r chi.Router) {
	r.Put("/items/{itemID}/selection", h.handleSetSelection)
	r.Post("/groups/{groupID}/checkout", h.handleCheckout)
	r.Post("/items/{itemID}/return", h.handleReturnToList)
	r.Post("/groups/{groupID}/checkout/finalize", h.handleFinalize)
	r.Post("/records/{recordID}/items/{itemID}/return", h.handleReturnFromRecord)
}

func writeTransitionError(w http.ResponseWriter, err error) {
	var partial *PartialTransitionError
	switch {
	case errors.As(err, &partial):
		// Some items moved, some did not. The caller needs the split, so
		// the breakdown goes out as the error body.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error":  partial.Error(),
			"moved":  partial.Moved,
			"failed": partial.Failed,
		})
	case errors.Is(err, ErrEmptyBasket):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrBuyerIneligible), errors.Is(err, ErrForeignGroup):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrItemNotInRecord),
		errors.Is(err, registry.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrInvalidState), errors.Is(err, journal.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func groupFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return uuid.Nil, false
	}
	if middleware.GroupID(r.Context()) != groupID {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return uuid.Nil, false
	}
	return groupID, true
}

func (h *Handler) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	var req struct {
		Selected bool `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkSelected(r.Context(), middleware.GroupID(r.Context()), itemID, req.Selected); err != nil {
		writeTransitionError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Checkout(r.Context(), groupID, middleware.MemberID(r.Context()))
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleReturnToList(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.service.ReturnToList(r.Context(), middleware.GroupID(r.Context()), itemID); err != nil {
		writeTransitionError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	record, err := h.service.FinalizeCheckout(r.Context(), groupID, middleware.MemberID(r.Context()))
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleReturnFromRecord(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathID(w, r, "recordID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.service.ReturnFromRecord(r.Context(), middleware.GroupID(r.Context()), recordID, itemID)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(item)
}
