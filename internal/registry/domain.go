package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid item state for this operation")
	ErrNotFound     = errors.New("item not found")
)

// Item locations. An item lives in exactly one of the shopping list or the
// basket; once it is captured into a purchased record its row is gone.
const (
	LocationList   = "list"
	LocationBasket = "basket"
)

// Item is one purchasable thing requested by a household group.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	GroupID     uuid.UUID  `json:"group_id"`
	Name        string     `json:"name"`
	Amount      int        `json:"amount"`
	Price       float64    `json:"price"`
	PurchasedBy *uuid.UUID `json:"purchased_by,omitempty"`
	AddedBy     uuid.UUID  `json:"added_by"`
	Location    string     `json:"location"`
	Selected    bool       `json:"selected"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ItemAddedEvent is journaled when a new item joins the shopping list.
type ItemAddedEvent struct {
	ID      uuid.UUID `json:"id"`
	GroupID uuid.UUID `json:"group_id"`
	Name    string    `json:"name"`
	Amount  int       `json:"amount"`
	AddedBy uuid.UUID `json:"added_by"`
}

// ItemEditedEvent is journaled when a list item's name or amount changes.
type ItemEditedEvent struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Amount int       `json:"amount"`
}

// ItemDeletedEvent is journaled when an item is removed for good.
type ItemDeletedEvent struct {
	ID       uuid.UUID `json:"id"`
	Location string    `json:"location"`
}

// ItemBasketedEvent is journaled when checkout moves an item into the basket.
type ItemBasketedEvent struct {
	ID      uuid.UUID `json:"id"`
	GroupID uuid.UUID `json:"group_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
}

// ItemReturnedEvent is journaled when a basketed item goes back to the list.
type ItemReturnedEvent struct {
	ID      uuid.UUID `json:"id"`
	GroupID uuid.UUID `json:"group_id"`
}
