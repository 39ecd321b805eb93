package basket

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyBasket     = errors.New("basket is empty")
	ErrRecordNotFound  = errors.New("purchased record not found")
	ErrItemNotInRecord = errors.New("item is not part of this record")
	ErrBuyerIneligible = errors.New("buyer is not an eligible member of this group")
	ErrForeignGroup    = errors.New("target belongs to another group")
)

// PurchasedRecord is an immutable-once-finalized snapshot of one checkout
// transaction.
type PurchasedRecord struct {
	ID          uuid.UUID    `json:"id"`
	GroupID     uuid.UUID    `json:"group_id"`
	PurchasedBy uuid.UUID    `json:"purchased_by"`
	Items       []RecordItem `json:"items"`
	TotalPrice  float64      `json:"total_price"`
	Version     int          `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
}

// RecordItem is one item snapshot frozen at checkout time.
type RecordItem struct {
	ItemID      uuid.UUID `json:"item_id"`
	Name        string    `json:"name"`
	Amount      int       `json:"amount"`
	Price       float64   `json:"price"`
	PurchasedBy uuid.UUID `json:"purchased_by"`
	AddedBy     uuid.UUID `json:"added_by"`
	Position    int       `json:"position"`
}

// TransitionFailure reports one item whose move failed during a multi-item
// checkout.
type TransitionFailure struct {
	ItemID uuid.UUID `json:"item_id"`
	Reason string    `json:"reason"`
}

// CheckoutResult lists which items moved and which did not.
type CheckoutResult struct {
	Moved  []uuid.UUID         `json:"moved"`
	Failed []TransitionFailure `json:"failed,omitempty"`
}

// PartialTransitionError reports a checkout where some items moved and some
// did not. Survivors stay moved; the failed set must be retried or shown to
// the user, never dropped.
type PartialTransitionError struct {
	Moved  []uuid.UUID
	Failed []TransitionFailure
}

func (e *PartialTransitionError) Error() string {
	return fmt.Sprintf("partial transition: %d item(s) moved, %d failed", len(e.Moved), len(e.Failed))
}

// RecordFinalizedEvent is journaled when a basket becomes a purchased record.
type RecordFinalizedEvent struct {
	RecordID   uuid.UUID   `json:"record_id"`
	GroupID    uuid.UUID   `json:"group_id"`
	BuyerID    uuid.UUID   `json:"buyer_id"`
	ItemIDs    []uuid.UUID `json:"item_ids"`
	TotalPrice float64     `json:"total_price"`
}

// ItemPurchasedEvent closes an item's journal chain when its snapshot is
// captured into a record.
type ItemPurchasedEvent struct {
	ItemID   uuid.UUID `json:"item_id"`
	RecordID uuid.UUID `json:"record_id"`
}

// ItemRestoredEvent is journaled when a snapshot leaves a record and the item
// returns to the shopping list.
type ItemRestoredEvent struct {
	ItemID   uuid.UUID `json:"item_id"`
	RecordID uuid.UUID `json:"record_id"`
}

// RecordAmendedEvent is journaled when an item is removed from a record and
// the total is recomputed.
type RecordAmendedEvent struct {
	RecordID      uuid.UUID `json:"record_id"`
	RemovedItemID uuid.UUID `json:"removed_item_id"`
	NewTotalPrice float64   `json:"new_total_price"`
}
