package basket

import (
	"context"

	"github.com/google/uuid"

	"roomledger/internal/membership"
	"roomledger/internal/registry"
)

// Service defines the interface for the basket transition engine: the legal
// moves of an item between list, basket, and purchased-record states. Every
// operation takes the caller's group and refuses targets outside it.
type Service interface {
	MarkSelected(ctx context.Context, groupID, itemID uuid.UUID, selected bool) error
	Checkout(ctx context.Context, groupID, buyerID uuid.UUID) (*CheckoutResult, error)
	ReturnToList(ctx context.Context, groupID, itemID uuid.UUID) error
	FinalizeCheckout(ctx context.Context, groupID, buyerID uuid.UUID) (*PurchasedRecord, error)
	ReturnFromRecord(ctx context.Context, groupID, recordID, itemID uuid.UUID) (*registry.Item, error)
}

// MemberDirectory is the slice of the membership service the engine needs to
// check buyer eligibility.
type MemberDirectory interface {
	GetMember(ctx context.Context, id uuid.UUID) (*membership.Member, error)
}
