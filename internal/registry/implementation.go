package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"roomledger/pkg/journal"
)

// service implements the Service interface.
type service struct {
	journal *journal.Journal
	db      *sql.DB
	cache   *listCache
}

// NewService creates a new registry service instance.
func NewService(j *journal.Journal, db *sql.DB) Service {
	return &service{
		journal: j,
		db:      db,
		cache:   newListCache(),
	}
}

func validateItemInput(name string, amount int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: item name must not be empty", ErrValidation)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrValidation, amount)
	}
	return nil
}

// AddItem creates a new item in list state for the group.
func (s *service) AddItem(ctx context.Context, groupID uuid.UUID, name string, amount int, addedBy uuid.UUID) (*Item, error) {
	if err := validateItemInput(name, amount); err != nil {
		return nil, err
	}

	id := uuid.New()
	eventData := ItemAddedEvent{
		ID:      id,
		GroupID: groupID,
		Name:    name,
		Amount:  amount,
		AddedBy: addedBy,
	}

	payload, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry payload: %w", err)
	}

	entry := journal.Entry{
		AggregateID: id,
		EntryType:   "ItemAdded",
		Payload:     payload,
		Version:     1,
	}

	item := &Item{
		ID:       id,
		GroupID:  groupID,
		Name:     name,
		Amount:   amount,
		Price:    0,
		AddedBy:  addedBy,
		Location: LocationList,
		Selected: false,
		Version:  1,
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.journal.AppendTx(ctx, tx, id, "item", 0, []journal.Entry{entry}); err != nil {
		return nil, fmt.Errorf("failed to journal transition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, group_id, name, amount, price, added_by, location, selected, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.GroupID, item.Name, item.Amount, item.Price, item.AddedBy, item.Location, item.Selected, item.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.cache.invalidate(groupID)
	return item, nil
}

// applyTransition journals the entry and applies the guarded read-model update
// in one transaction, so the journal chain and the item row always advance
// together. A CAS miss on either side rolls both back and surfaces as
// journal.ErrConflict.
func (s *service) applyTransition(ctx context.Context, itemID uuid.UUID, expectedVersion int, entry journal.Entry, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.journal.AppendTx(ctx, tx, itemID, "item", expectedVersion, []journal.Entry{entry}); err != nil {
		return fmt.Errorf("failed to journal transition: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update read model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return journal.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EditItem changes the name and amount of a list item. Items already in the
// basket or captured in a record cannot be edited.
func (s *service) EditItem(ctx context.Context, itemID uuid.UUID, newName string, newAmount int) error {
	if err := validateItemInput(newName, newAmount); err != nil {
		return err
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Location != LocationList {
		return fmt.Errorf("%w: item %s is in %s state", ErrInvalidState, itemID, item.Location)
	}

	eventData := ItemEditedEvent{
		ID:     itemID,
		Name:   newName,
		Amount: newAmount,
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal entry payload: %w", err)
	}

	entry := journal.Entry{
		AggregateID: itemID,
		EntryType:   "ItemEdited",
		Payload:     payload,
		Version:     item.Version + 1,
	}
	err = s.applyTransition(ctx, itemID, item.Version, entry, `
		UPDATE items
		SET name = $1, amount = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
	`, newName, newAmount, itemID, item.Version)
	if err != nil {
		return err
	}

	s.cache.invalidate(item.GroupID)
	return nil
}

// DeleteItem removes an item permanently, from any location. Deleting an item
// that no longer exists succeeds.
func (s *service) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	eventData := ItemDeletedEvent{
		ID:       itemID,
		Location: item.Location,
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal entry payload: %w", err)
	}

	entry := journal.Entry{
		AggregateID: itemID,
		EntryType:   "ItemDeleted",
		Payload:     payload,
		Version:     item.Version + 1,
	}
	err = s.applyTransition(ctx, itemID, item.Version, entry,
		`DELETE FROM items WHERE id = $1 AND version = $2`, itemID, item.Version)
	if err != nil {
		return err
	}

	s.cache.invalidate(item.GroupID)
	return nil
}

// GetItem retrieves an item by its ID.
func (s *service) GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	query := `
		SELECT id, group_id, name, amount, price, purchased_by, added_by, location, selected, version, created_at, updated_at
		FROM items
		WHERE id = $1
	`
	item := &Item{}
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.GroupID,
		&item.Name,
		&item.Amount,
		&item.Price,
		&item.PurchasedBy,
		&item.AddedBy,
		&item.Location,
		&item.Selected,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("failed to get item from read model: %w", err)
	}

	return item, nil
}

// ListActiveItems returns the group's shopping list, optionally including the
// basket. Results are deduplicated by item ID only; two items whose fields
// happen to coincide are still distinct items.
func (s *service) ListActiveItems(ctx context.Context, groupID uuid.UUID, includeBasket bool) ([]*Item, error) {
	if items, ok := s.cache.get(groupID, includeBasket); ok {
		return items, nil
	}

	query := `
		SELECT id, group_id, name, amount, price, purchased_by, added_by, location, selected, version, created_at, updated_at
		FROM items
		WHERE group_id = $1
	`
	if !includeBasket {
		query += ` AND location = 'list'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var items []*Item
	for rows.Next() {
		item := &Item{}
		err := rows.Scan(
			&item.ID,
			&item.GroupID,
			&item.Name,
			&item.Amount,
			&item.Price,
			&item.PurchasedBy,
			&item.AddedBy,
			&item.Location,
			&item.Selected,
			&item.Version,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	s.cache.put(groupID, includeBasket, items)
	return items, nil
}

// ListSelectedItems returns the list items staged for checkout.
func (s *service) ListSelectedItems(ctx context.Context, groupID uuid.UUID) ([]*Item, error) {
	query := `
		SELECT id, group_id, name, amount, price, purchased_by, added_by, location, selected, version, created_at, updated_at
		FROM items
		WHERE group_id = $1 AND location = 'list' AND selected = TRUE
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selected items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		err := rows.Scan(
			&item.ID,
			&item.GroupID,
			&item.Name,
			&item.Amount,
			&item.Price,
			&item.PurchasedBy,
			&item.AddedBy,
			&item.Location,
			&item.Selected,
			&item.Version,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return items, nil
}

// SetSelected flips the checkout staging flag on a list item. The flag is not
// journaled; it is render state, not a transition.
func (s *service) SetSelected(ctx context.Context, itemID uuid.UUID, selected bool) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Location != LocationList {
		return fmt.Errorf("%w: only list items can be selected, item %s is in %s state", ErrInvalidState, itemID, item.Location)
	}

	query := `
		UPDATE items
		SET selected = $1, updated_at = NOW()
		WHERE id = $2 AND location = 'list'
	`
	res, err := s.db.ExecContext(ctx, query, selected, itemID)
	if err != nil {
		return fmt.Errorf("failed to update read model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return journal.ErrConflict
	}

	s.cache.invalidate(item.GroupID)
	return nil
}

// MoveToBasket performs the atomic list -> basket transition for one item.
func (s *service) MoveToBasket(ctx context.Context, itemID, buyerID uuid.UUID) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Location != LocationList {
		return fmt.Errorf("%w: item %s is in %s state", ErrInvalidState, itemID, item.Location)
	}

	eventData := ItemBasketedEvent{
		ID:      itemID,
		GroupID: item.GroupID,
		BuyerID: buyerID,
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal entry payload: %w", err)
	}

	entry := journal.Entry{
		AggregateID: itemID,
		EntryType:   "ItemBasketed",
		Payload:     payload,
		Version:     item.Version + 1,
	}
	err = s.applyTransition(ctx, itemID, item.Version, entry, `
		UPDATE items
		SET location = 'basket', purchased_by = $1, selected = FALSE, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND location = 'list'
	`, buyerID, itemID, item.Version)
	if err != nil {
		return err
	}

	s.cache.invalidate(item.GroupID)
	return nil
}

// ReturnToList performs the atomic basket -> list transition, resetting the
// purchase fields.
func (s *service) ReturnToList(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Location != LocationBasket {
		return fmt.Errorf("%w: item %s is in %s state", ErrInvalidState, itemID, item.Location)
	}

	eventData := ItemReturnedEvent{
		ID:      itemID,
		GroupID: item.GroupID,
	}
	payload, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal entry payload: %w", err)
	}

	entry := journal.Entry{
		AggregateID: itemID,
		EntryType:   "ItemReturned",
		Payload:     payload,
		Version:     item.Version + 1,
	}
	err = s.applyTransition(ctx, itemID, item.Version, entry, `
		UPDATE items
		SET location = 'list', price = 0, purchased_by = NULL, selected = FALSE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND location = 'basket'
	`, itemID, item.Version)
	if err != nil {
		return err
	}

	s.cache.invalidate(item.GroupID)
	return nil
}

// InvalidateGroup drops the group's cached list reads.
func (s *service) InvalidateGroup(groupID uuid.UUID) {
	s.cache.invalidate(groupID)
}
