// Package schema holds the shared database schema. Every service applies it
// at startup; all statements are idempotent.
package schema

import "database/sql"

const ddl = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id BIGSERIAL PRIMARY KEY,
    aggregate_id UUID NOT NULL,
    aggregate_type TEXT NOT NULL,
    entry_type TEXT NOT NULL,
    payload JSONB NOT NULL,
    metadata JSONB,
    version INT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS members (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    group_id UUID NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    version INT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS credentials (
    member_id UUID PRIMARY KEY REFERENCES members(id) ON DELETE CASCADE,
    password_hash TEXT NOT NULL,
    salt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL,
    name TEXT NOT NULL,
    amount INT NOT NULL,
    price DOUBLE PRECISION NOT NULL DEFAULT 0,
    purchased_by UUID,
    added_by UUID NOT NULL,
    location TEXT NOT NULL CHECK (location IN ('list', 'basket')),
    selected BOOLEAN NOT NULL DEFAULT FALSE,
    version INT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchased_records (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL,
    purchased_by UUID NOT NULL,
    total_price DOUBLE PRECISION NOT NULL,
    version INT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS record_items (
    record_id UUID NOT NULL REFERENCES purchased_records(id) ON DELETE CASCADE,
    item_id UUID NOT NULL,
    name TEXT NOT NULL,
    amount INT NOT NULL,
    price DOUBLE PRECISION NOT NULL,
    purchased_by UUID NOT NULL,
    added_by UUID NOT NULL,
    position INT NOT NULL,
    PRIMARY KEY (record_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_items_group_location ON items(group_id, location);
CREATE INDEX IF NOT EXISTS idx_purchased_records_group ON purchased_records(group_id);
CREATE INDEX IF NOT EXISTS idx_record_items_record ON record_items(record_id);
CREATE INDEX IF NOT EXISTS idx_members_group ON members(group_id);
CREATE INDEX IF NOT EXISTS idx_journal_entries_aggregate ON journal_entries(aggregate_id);
`

// Apply creates any missing tables and indexes.
func Apply(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}
