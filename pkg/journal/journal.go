// Package journal provides the append-only transition journal for ledger
// aggregates (items, purchased records, members). Every state transition is
// recorded at an expected version; two writers racing over the same aggregate
// cannot both win.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrConflict = errors.New("concurrency conflict: version mismatch")

// Entry is one recorded transition of a single aggregate.
type Entry struct {
	ID            int64                  `json:"id"`
	AggregateID   uuid.UUID              `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EntryType     string                 `json:"entry_type"`
	Payload       json.RawMessage        `json:"payload"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Journal appends and replays transition entries with optimistic concurrency
// control on a per-aggregate version chain.
type Journal struct {
	db     *sql.DB
	tracer trace.Tracer
}

func New(db *sql.DB) *Journal {
	return &Journal{
		db:     db,
		tracer: otel.Tracer("roomledger/journal"),
	}
}

// Append atomically records entries for one aggregate. expectedVersion must
// match the aggregate's current version or ErrConflict is returned and nothing
// is written.
func (j *Journal) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, entries []Entry) error {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("entry.count", len(entries)),
		),
	)
	defer span.End()

	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := j.appendInTx(ctx, span, tx, aggregateID, aggregateType, expectedVersion, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// AppendTx records entries inside the caller's transaction. The version check,
// the inserts, and whatever the caller writes alongside them commit or roll
// back as one unit, so the journal can never drift ahead of a read model
// guarded in the same transaction.
func (j *Journal) AppendTx(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, entries []Entry) error {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("entry.count", len(entries)),
		),
	)
	defer span.End()

	return j.appendInTx(ctx, span, tx, aggregateID, aggregateType, expectedVersion, entries)
}

func (j *Journal) appendInTx(ctx context.Context, span trace.Span, tx *sql.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, entries []Entry) error {
	var currentVersion int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM journal_entries
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConflict
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal_entries (aggregate_id, aggregate_type, entry_type, payload, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		version := expectedVersion + i + 1
		metadataJSON, _ := json.Marshal(entry.Metadata)

		var entryID int64
		err = stmt.QueryRowContext(
			ctx,
			aggregateID,
			aggregateType,
			entry.EntryType,
			entry.Payload,
			metadataJSON,
			version,
			time.Now().UTC(),
		).Scan(&entryID)
		if err != nil {
			// Unique violation on (aggregate_id, version): a concurrent
			// writer got in between the version check and the insert.
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return ErrConflict
			}
			return fmt.Errorf("insert entry %d: %w", i, err)
		}

		span.AddEvent("entry.appended", trace.WithAttributes(
			attribute.Int64("entry.id", entryID),
			attribute.Int("entry.version", version),
			attribute.String("entry.type", entry.EntryType),
		))
	}

	return nil
}

// History returns an aggregate's entries in version order, optionally bounded
// by toVersion (0 means unbounded).
func (j *Journal) History(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Entry, error) {
	ctx, span := j.tracer.Start(ctx, "journal.history",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, aggregate_id, aggregate_type, entry_type, payload, metadata, version, created_at
		FROM journal_entries
		WHERE aggregate_id = $1
		AND version >= $2
	`
	args := []interface{}{aggregateID, fromVersion}

	if toVersion > 0 {
		query += " AND version <= $3"
		args = append(args, toVersion)
	}
	query += " ORDER BY version ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.AggregateID,
			&entry.AggregateType,
			&entry.EntryType,
			&entry.Payload,
			&metadataJSON,
			&entry.Version,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if len(metadataJSON) > 0 {
			json.Unmarshal(metadataJSON, &entry.Metadata)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}

// CurrentVersion returns the latest recorded version for an aggregate, 0 when
// the aggregate has no entries yet.
func (j *Journal) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	ctx, span := j.tracer.Start(ctx, "journal.current_version",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
		),
	)
	defer span.End()

	var version int
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM journal_entries
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("query version: %w", err)
	}

	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}
