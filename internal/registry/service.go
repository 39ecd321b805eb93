package registry

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the item registry. The transition
// primitives (SetSelected, MoveToBasket, ReturnToList) are single-item atomic
// moves used by the basket engine; everything else is the CRUD surface.
type Service interface {
	AddItem(ctx context.Context, groupID uuid.UUID, name string, amount int, addedBy uuid.UUID) (*Item, error)
	EditItem(ctx context.Context, itemID uuid.UUID, newName string, newAmount int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error)
	ListActiveItems(ctx context.Context, groupID uuid.UUID, includeBasket bool) ([]*Item, error)
	ListSelectedItems(ctx context.Context, groupID uuid.UUID) ([]*Item, error)

	SetSelected(ctx context.Context, itemID uuid.UUID, selected bool) error
	MoveToBasket(ctx context.Context, itemID, buyerID uuid.UUID) error
	ReturnToList(ctx context.Context, itemID uuid.UUID) error

	// InvalidateGroup drops cached list reads for the group. The basket
	// engine calls it after writing item rows outside this service.
	InvalidateGroup(groupID uuid.UUID)
}
