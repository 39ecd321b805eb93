package settlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("purchased record not found")
	ErrEmptySettlement = errors.New("no purchased records to settle")
	ErrDegenerateGroup = errors.New("group has no members to settle between")
)

// PurchaseSummary is the slice of a purchased record the calculator needs.
type PurchaseSummary struct {
	PurchasedBy uuid.UUID
	TotalPrice  float64
}

// MemberShare is one member's position in the group settlement. A positive
// balance means the group owes the member; a negative one means the member
// owes the group.
type MemberShare struct {
	MemberID uuid.UUID `json:"member_id"`
	Spent    float64   `json:"spent"`
	Balance  float64   `json:"balance"`
}

// Report is the full settlement over all purchased records of a group.
type Report struct {
	GroupTotal float64       `json:"group_total"`
	Average    float64       `json:"average"`
	Shares     []MemberShare `json:"shares"`
}

// RecordSummary is a purchased record as the settlement surface lists it.
type RecordSummary struct {
	ID          uuid.UUID `json:"id"`
	PurchasedBy uuid.UUID `json:"purchased_by"`
	TotalPrice  float64   `json:"total_price"`
	ItemCount   int       `json:"item_count"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordPriceCorrectedEvent is journaled when a record's total is corrected
// after the fact.
type RecordPriceCorrectedEvent struct {
	RecordID uuid.UUID `json:"record_id"`
	OldPrice float64   `json:"old_price"`
	NewPrice float64   `json:"new_price"`
}

// SettlementClearedEvent is journaled when a group wipes its purchase
// history after settling up.
type SettlementClearedEvent struct {
	GroupID      uuid.UUID `json:"group_id"`
	RecordCount  int       `json:"record_count"`
	ClearedTotal float64   `json:"cleared_total"`
}
