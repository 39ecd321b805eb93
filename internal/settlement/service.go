package settlement

import (
	"context"

	"github.com/google/uuid"

	"roomledger/internal/basket"
)

// Service defines the interface for the settlement surface: listing purchase
// history, correcting record prices, computing the group balance, and
// clearing the ledger after settling up.
type Service interface {
	ListRecords(ctx context.Context, groupID uuid.UUID) ([]*RecordSummary, error)
	GetRecord(ctx context.Context, recordID uuid.UUID) (*basket.PurchasedRecord, error)
	UpdateRecordPrice(ctx context.Context, recordID uuid.UUID, newPrice float64) error
	Settlement(ctx context.Context, groupID uuid.UUID) (*Report, error)
	ClearSettlement(ctx context.Context, groupID uuid.UUID) error
}
