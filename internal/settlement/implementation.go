package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"roomledger/internal/basket"
	"roomledger/pkg/journal"
)

// service implements the Service interface.
type service struct {
	journal *journal.Journal
	db      *sql.DB
}

// NewService creates a new settlement service.
func NewService(j *journal.Journal, db *sql.DB) Service {
	return &service{journal: j, db: db}
}

// ListRecords returns the group's purchase history, newest first.
func (s *service) ListRecords(ctx context.Context, groupID uuid.UUID) ([]*RecordSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.purchased_by, r.total_price, r.version, r.created_at,
		       COUNT(ri.item_id)
		FROM purchased_records r
		LEFT JOIN record_items ri ON ri.record_id = r.id
		WHERE r.group_id = $1
		GROUP BY r.id
		ORDER BY r.created_at DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*RecordSummary
	for rows.Next() {
		record := &RecordSummary{}
		err := rows.Scan(
			&record.ID,
			&record.PurchasedBy,
			&record.TotalPrice,
			&record.Version,
			&record.CreatedAt,
			&record.ItemCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetRecord returns one purchased record with its item snapshots.
func (s *service) GetRecord(ctx context.Context, recordID uuid.UUID) (*basket.PurchasedRecord, error) {
	record := &basket.PurchasedRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, purchased_by, total_price, version, created_at
		FROM purchased_records
		WHERE id = $1
	`, recordID).Scan(
		&record.ID,
		&record.GroupID,
		&record.PurchasedBy,
		&record.TotalPrice,
		&record.Version,
		&record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, recordID)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, name, amount, price, purchased_by, added_by, position
		FROM record_items
		WHERE record_id = $1
		ORDER BY position ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get record items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item basket.RecordItem
		err := rows.Scan(
			&item.ItemID,
			&item.Name,
			&item.Amount,
			&item.Price,
			&item.PurchasedBy,
			&item.AddedBy,
			&item.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record item: %w", err)
		}
		record.Items = append(record.Items, item)
	}
	return record, rows.Err()
}

// UpdateRecordPrice corrects a record's total after the fact, for receipts
// entered wrong at checkout.
func (s *service) UpdateRecordPrice(ctx context.Context, recordID uuid.UUID, newPrice float64) error {
	if newPrice < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}

	var oldPrice float64
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT total_price, version FROM purchased_records WHERE id = $1
	`, recordID).Scan(&oldPrice, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrNotFound, recordID)
		}
		return fmt.Errorf("failed to get record: %w", err)
	}

	payload, err := json.Marshal(RecordPriceCorrectedEvent{
		RecordID: recordID,
		OldPrice: oldPrice,
		NewPrice: newPrice,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	entry := journal.Entry{
		AggregateID: recordID,
		EntryType:   "RecordPriceCorrected",
		Payload:     payload,
		Version:     version + 1,
	}

	// Journal and read model advance in the same transaction; a CAS miss on
	// the row rolls the journal entry back with it.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.journal.AppendTx(ctx, tx, recordID, "record", version, []journal.Entry{entry}); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE purchased_records
		SET total_price = $1, version = $2
		WHERE id = $3 AND version = $4
	`, newPrice, version+1, recordID, version)
	if err != nil {
		return fmt.Errorf("failed to update record price: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: record %s changed concurrently", journal.ErrConflict, recordID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Settlement computes the group balance over all purchased records.
func (s *service) Settlement(ctx context.Context, groupID uuid.UUID) (*Report, error) {
	purchaseRows, err := s.db.QueryContext(ctx, `
		SELECT purchased_by, total_price
		FROM purchased_records
		WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	var purchases []PurchaseSummary
	for purchaseRows.Next() {
		var purchase PurchaseSummary
		if err := purchaseRows.Scan(&purchase.PurchasedBy, &purchase.TotalPrice); err != nil {
			purchaseRows.Close()
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}
	purchaseRows.Close()
	if err := purchaseRows.Err(); err != nil {
		return nil, err
	}

	return Compute(purchases)
}

// ClearSettlement wipes the group's purchase history in one transaction,
// after the members have settled their balances outside the system.
func (s *service) ClearSettlement(ctx context.Context, groupID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	var total float64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_price), 0)
		FROM purchased_records
		WHERE group_id = $1
	`, groupID).Scan(&count, &total)
	if err != nil {
		return fmt.Errorf("failed to sum records: %w", err)
	}
	// Clearing an already-empty ledger is a no-op, not an error.
	if count == 0 {
		return nil
	}

	// record_items go with their records via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purchased_records WHERE group_id = $1
	`, groupID); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM journal_entries WHERE aggregate_id = $1
	`, groupID).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read group journal version: %w", err)
	}
	payload, _ := json.Marshal(SettlementClearedEvent{
		GroupID:      groupID,
		RecordCount:  count,
		ClearedTotal: total,
	})
	entry := journal.Entry{
		AggregateID: groupID,
		EntryType:   "SettlementCleared",
		Payload:     payload,
		Version:     version + 1,
	}
	if err := s.journal.AppendTx(ctx, tx, groupID, "group", version, []journal.Entry{entry}); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
