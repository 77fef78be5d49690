// Package migrations applies the database schema. Statements are idempotent
// so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS oracle_feeders (
		address        TEXT PRIMARY KEY,
		stake          BIGINT NOT NULL DEFAULT 0,
		yellow_cards   INTEGER NOT NULL DEFAULT 0,
		last_active_at TIMESTAMPTZ NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_stake_ledger (
		id            TEXT PRIMARY KEY,
		address       TEXT NOT NULL,
		entry_type    TEXT NOT NULL,
		amount        BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		reference_id  TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_feeds (
		id             TEXT PRIMARY KEY,
		symbol         TEXT NOT NULL,
		price          BIGINT NOT NULL DEFAULT 0,
		last_updated   TIMESTAMPTZ,
		only_seeders   BOOLEAN NOT NULL DEFAULT TRUE,
		quorum_size    INTEGER NOT NULL,
		price_per_read BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_fillers (
		oracle_id TEXT NOT NULL,
		address   TEXT NOT NULL,
		role      TEXT NOT NULL,
		added_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (oracle_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_admins (
		oracle_id TEXT NOT NULL,
		address   TEXT NOT NULL,
		added_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (oracle_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_admissions (
		oracle_id    TEXT NOT NULL,
		address      TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (oracle_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_rounds (
		id             TEXT PRIMARY KEY,
		oracle_id      TEXT NOT NULL,
		proposed_price BIGINT NOT NULL,
		proposer       TEXT NOT NULL,
		approvals      INTEGER NOT NULL DEFAULT 0,
		rejects        INTEGER NOT NULL DEFAULT 0,
		outcome        TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		resolved_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_votes (
		round_id TEXT NOT NULL,
		voter    TEXT NOT NULL,
		approve  BOOLEAN NOT NULL,
		disputed BOOLEAN NOT NULL DEFAULT FALSE,
		cast_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (round_id, voter)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_treasury_pool (
		id      INTEGER PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0
	);
	INSERT INTO oracle_treasury_pool (id, balance) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
