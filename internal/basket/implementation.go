package basket

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"roomledger/internal/registry"
	"roomledger/pkg/journal"
)

// service implements the Service interface.
type service struct {
	journal  *journal.Journal
	db       *sql.DB
	registry registry.Service
	members  MemberDirectory
}

// NewService creates a new basket transition engine.
func NewService(j *journal.Journal, db *sql.DB, reg registry.Service, members MemberDirectory) Service {
	return &service{
		journal:  j,
		db:       db,
		registry: reg,
		members:  members,
	}
}

// checkBuyer validates that the buyer is an active member of the group.
func (s *service) checkBuyer(ctx context.Context, groupID, buyerID uuid.UUID) error {
	member, err := s.members.GetMember(ctx, buyerID)
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}
	if member.Status != "active" || member.GroupID != groupID {
		return ErrBuyerIneligible
	}
	return nil
}

// checkItemGroup refuses items that belong to a different group than the
// caller's.
func (s *service) checkItemGroup(ctx context.Context, groupID, itemID uuid.UUID) error {
	item, err := s.registry.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.GroupID != groupID {
		return fmt.Errorf("%w: item %s", ErrForeignGroup, itemID)
	}
	return nil
}

// MarkSelected stages or unstages a list item for checkout.
func (s *service) MarkSelected(ctx context.Context, groupID, itemID uuid.UUID, selected bool) error {
	if err := s.checkItemGroup(ctx, groupID, itemID); err != nil {
		return err
	}
	return s.registry.SetSelected(ctx, itemID, selected)
}

// Checkout moves every selected item of the group into the basket. Each
// item's move is atomic and independent: one failure does not roll back the
// others, but every failure is reported.
func (s *service) Checkout(ctx context.Context, groupID, buyerID uuid.UUID) (*CheckoutResult, error) {
	if err := s.checkBuyer(ctx, groupID, buyerID); err != nil {
		return nil, err
	}

	selected, err := s.registry.ListSelectedItems(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selected items: %w", err)
	}

	result := &CheckoutResult{}
	for _, item := range selected {
		if err := s.registry.MoveToBasket(ctx, item.ID, buyerID); err != nil {
			slog.Warn("checkout: item move failed",
				"item_id", item.ID,
				"group_id", groupID,
				"error", err,
			)
			result.Failed = append(result.Failed, TransitionFailure{
				ItemID: item.ID,
				Reason: err.Error(),
			})
			continue
		}
		result.Moved = append(result.Moved, item.ID)
	}

	if len(result.Failed) > 0 {
		return result, &PartialTransitionError{Moved: result.Moved, Failed: result.Failed}
	}
	return result, nil
}

// ReturnToList moves a basketed item back to the shopping list, resetting its
// purchase fields.
func (s *service) ReturnToList(ctx context.Context, groupID, itemID uuid.UUID) error {
	if err := s.checkItemGroup(ctx, groupID, itemID); err != nil {
		return err
	}
	return s.registry.ReturnToList(ctx, itemID)
}

// FinalizeCheckout captures the group's entire basket into one purchased
// record. The snapshot insert, total computation, and basket clear commit as
// a single transaction, so no item is ever visible in both a record and the
// basket.
func (s *service) FinalizeCheckout(ctx context.Context, groupID, buyerID uuid.UUID) (*PurchasedRecord, error) {
	if err := s.checkBuyer(ctx, groupID, buyerID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, amount, price, purchased_by, added_by, version
		FROM items
		WHERE group_id = $1 AND location = 'basket'
		ORDER BY created_at ASC
		FOR UPDATE
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to read basket: %w", err)
	}

	type basketRow struct {
		snapshot RecordItem
		version  int
	}
	var basketRows []basketRow
	for rows.Next() {
		var row basketRow
		var purchasedBy *uuid.UUID
		err := rows.Scan(
			&row.snapshot.ItemID,
			&row.snapshot.Name,
			&row.snapshot.Amount,
			&row.snapshot.Price,
			&purchasedBy,
			&row.snapshot.AddedBy,
			&row.version,
		)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan basket item: %w", err)
		}
		if purchasedBy != nil {
			row.snapshot.PurchasedBy = *purchasedBy
		} else {
			row.snapshot.PurchasedBy = buyerID
		}
		row.snapshot.Position = len(basketRows)
		basketRows = append(basketRows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate basket: %w", err)
	}

	if len(basketRows) == 0 {
		return nil, ErrEmptyBasket
	}

	record := &PurchasedRecord{
		ID:          uuid.New(),
		GroupID:     groupID,
		PurchasedBy: buyerID,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	var itemIDs []uuid.UUID
	for _, row := range basketRows {
		record.Items = append(record.Items, row.snapshot)
		record.TotalPrice += row.snapshot.Price
		itemIDs = append(itemIDs, row.snapshot.ItemID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchased_records (id, group_id, purchased_by, total_price, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.GroupID, record.PurchasedBy, record.TotalPrice, record.Version, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}

	for _, snapshot := range record.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO record_items (record_id, item_id, name, amount, price, purchased_by, added_by, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, record.ID, snapshot.ItemID, snapshot.Name, snapshot.Amount, snapshot.Price, snapshot.PurchasedBy, snapshot.AddedBy, snapshot.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record item: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM items WHERE id = ANY($1)`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to clear basket: %w", err)
	}

	// Journal in the same transaction: the record's chain starts here and
	// each captured item's chain closes here, atomically with the capture.
	payload, _ := json.Marshal(RecordFinalizedEvent{
		RecordID:   record.ID,
		GroupID:    record.GroupID,
		BuyerID:    record.PurchasedBy,
		ItemIDs:    itemIDs,
		TotalPrice: record.TotalPrice,
	})
	entry := journal.Entry{
		AggregateID: record.ID,
		EntryType:   "RecordFinalized",
		Payload:     payload,
		Version:     1,
	}
	if err := s.journal.AppendTx(ctx, tx, record.ID, "record", 0, []journal.Entry{entry}); err != nil {
		return nil, fmt.Errorf("failed to journal record: %w", err)
	}

	for _, row := range basketRows {
		itemPayload, _ := json.Marshal(ItemPurchasedEvent{ItemID: row.snapshot.ItemID, RecordID: record.ID})
		itemEntry := journal.Entry{
			AggregateID: row.snapshot.ItemID,
			EntryType:   "ItemPurchased",
			Payload:     itemPayload,
			Version:     row.version + 1,
		}
		if err := s.journal.AppendTx(ctx, tx, row.snapshot.ItemID, "item", row.version, []journal.Entry{itemEntry}); err != nil {
			return nil, fmt.Errorf("failed to journal item capture: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.registry.InvalidateGroup(groupID)

	return record, nil
}

// ReturnFromRecord removes one item snapshot from a purchased record,
// recomputes the record total over the remainder, and reinserts the item into
// the shopping list with its purchase fields reset. An emptied record is kept,
// not pruned.
func (s *service) ReturnFromRecord(ctx context.Context, groupID, recordID, itemID uuid.UUID) (*registry.Item, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerGroup uuid.UUID
	var recordVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT group_id, version
		FROM purchased_records
		WHERE id = $1
		FOR UPDATE
	`, recordID).Scan(&ownerGroup, &recordVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if ownerGroup != groupID {
		return nil, fmt.Errorf("%w: record %s", ErrForeignGroup, recordID)
	}

	var snapshot RecordItem
	err = tx.QueryRowContext(ctx, `
		SELECT item_id, name, amount, price, purchased_by, added_by, position
		FROM record_items
		WHERE record_id = $1 AND item_id = $2
	`, recordID, itemID).Scan(
		&snapshot.ItemID,
		&snapshot.Name,
		&snapshot.Amount,
		&snapshot.Price,
		&snapshot.PurchasedBy,
		&snapshot.AddedBy,
		&snapshot.Position,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: item %s in record %s", ErrItemNotInRecord, itemID, recordID)
		}
		return nil, fmt.Errorf("failed to get record item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM record_items WHERE record_id = $1 AND item_id = $2
	`, recordID, itemID); err != nil {
		return nil, fmt.Errorf("failed to remove record item: %w", err)
	}

	var newTotal float64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(price), 0)
		FROM record_items
		WHERE record_id = $1
	`, recordID).Scan(&newTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute record total: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE purchased_records
		SET total_price = $1, version = version + 1
		WHERE id = $2
	`, newTotal, recordID); err != nil {
		return nil, fmt.Errorf("failed to update record total: %w", err)
	}

	// The item's journal chain survived its capture; the reinserted row
	// picks the chain back up so later CAS edits line up.
	var itemJournalVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM journal_entries WHERE aggregate_id = $1
	`, itemID).Scan(&itemJournalVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read item journal version: %w", err)
	}

	item := &registry.Item{
		ID:       snapshot.ItemID,
		GroupID:  ownerGroup,
		Name:     snapshot.Name,
		Amount:   snapshot.Amount,
		Price:    0,
		AddedBy:  snapshot.AddedBy,
		Location: registry.LocationList,
		Selected: false,
		Version:  itemJournalVersion + 1,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, group_id, name, amount, price, added_by, location, selected, version)
		VALUES ($1, $2, $3, $4, 0, $5, 'list', FALSE, $6)
	`, item.ID, item.GroupID, item.Name, item.Amount, item.AddedBy, item.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to reinsert item: %w", err)
	}

	amendPayload, _ := json.Marshal(RecordAmendedEvent{
		RecordID:      recordID,
		RemovedItemID: itemID,
		NewTotalPrice: newTotal,
	})
	amendEntry := journal.Entry{
		AggregateID: recordID,
		EntryType:   "RecordAmended",
		Payload:     amendPayload,
		Version:     recordVersion + 1,
	}
	if err := s.journal.AppendTx(ctx, tx, recordID, "record", recordVersion, []journal.Entry{amendEntry}); err != nil {
		return nil, fmt.Errorf("failed to journal record amendment: %w", err)
	}

	restorePayload, _ := json.Marshal(ItemRestoredEvent{ItemID: itemID, RecordID: recordID})
	restoreEntry := journal.Entry{
		AggregateID: itemID,
		EntryType:   "ItemRestored",
		Payload:     restorePayload,
		Version:     itemJournalVersion + 1,
	}
	if err := s.journal.AppendTx(ctx, tx, itemID, "item", itemJournalVersion, []journal.Entry{restoreEntry}); err != nil {
		return nil, fmt.Errorf("failed to journal item restore: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.registry.InvalidateGroup(ownerGroup)

	return item, nil
}
