package settlement

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

// Mount registers the settlement routes.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/groups/{groupID}/records", h.handleListRecords)
	r.Get("/records/{recordID}", h.handleGetRecord)
	r.Put("/records/{recordID}/price", h.handleUpdatePrice)
	r.Get("/groups/{groupID}/settlement", h.handleSettlement)
	r.Delete("/groups/{groupID}/records", h.handleClear)
}

func writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmptySettlement), errors.Is(err, ErrDegenerateGroup):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, journal.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

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

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	records, err := h.service.ListRecords(r.Context(), groupID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	if records == nil {
		records = []*RecordSummary{}
	}

	json.NewEncoder(w).Encode(records)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		http.Error(w, "invalid record ID", http.StatusBadRequest)
		return
	}

	record, err := h.service.GetRecord(r.Context(), recordID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	if record.GroupID != middleware.GroupID(r.Context()) {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return
	}

	json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		http.Error(w, "invalid record ID", http.StatusBadRequest)
		return
	}

	record, err := h.service.GetRecord(r.Context(), recordID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	if record.GroupID != middleware.GroupID(r.Context()) {
		http.Error(w, "you are not a member of this group", http.StatusForbidden)
		return
	}

	var req struct {
		TotalPrice float64 `json:"total_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateRecordPrice(r.Context(), recordID, req.TotalPrice); err != nil {
		writeSettlementError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSettlement(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	report, err := h.service.Settlement(r.Context(), groupID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	json.NewEncoder(w).Encode(report)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearSettlement(r.Context(), groupID); err != nil {
		writeSettlementError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
