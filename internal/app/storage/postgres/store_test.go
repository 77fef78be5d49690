package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/platform/migrations"
	_ "github.com/lib/pq"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	f := feeder.Feeder{Address: "it-alice", Stake: 100, LastActiveAt: now, CreatedAt: now, UpdatedAt: now}
	if err := store.PutFeeder(ctx, f); err != nil {
		t.Fatalf("put feeder: %v", err)
	}

	o := feed.Oracle{ID: "it-feed-1", Symbol: "BTC/USD", QuorumSize: 1, OnlySeeders: true, CreatedAt: now, UpdatedAt: now}
	seed := []feed.Filler{{OracleID: o.ID, Address: f.Address, Role: feed.RoleSeed, AddedAt: now}}
	admins := []feed.Admin{{OracleID: o.ID, Address: f.Address, AddedAt: now}}
	if err := store.CreateOracle(ctx, o, seed, admins); err != nil {
		t.Fatalf("create oracle: %v", err)
	}

	r := feed.Round{ID: "it-round-1", OracleID: o.ID, ProposedPrice: 42, Proposer: f.Address, Approvals: 1, Outcome: feed.OutcomePending, CreatedAt: now}
	v := feed.Vote{RoundID: r.ID, Voter: f.Address, Approve: true, CastAt: now}
	if err := store.CreateRound(ctx, r, v); err != nil {
		t.Fatalf("create round: %v", err)
	}

	open, err := store.GetOpenRound(ctx, o.ID)
	if err != nil {
		t.Fatalf("get open round: %v", err)
	}
	if open.ID != r.ID {
		t.Fatalf("open round = %s, want %s", open.ID, r.ID)
	}

	r.Outcome = feed.OutcomeApproved
	r.ResolvedAt = now
	o.Price = 42
	o.LastUpdated = now
	if err := store.ResolveRound(ctx, r, o, nil); err != nil {
		t.Fatalf("resolve round: %v", err)
	}

	got, err := store.GetOracle(ctx, o.ID)
	if err != nil {
		t.Fatalf("get oracle: %v", err)
	}
	if got.Price != 42 {
		t.Fatalf("price = %d, want 42", got.Price)
	}

	if err := store.AddToPool(ctx, 500); err != nil {
		t.Fatalf("add to pool: %v", err)
	}
	drained, err := store.DrainPool(ctx)
	if err != nil {
		t.Fatalf("drain pool: %v", err)
	}
	if drained < 500 {
		t.Fatalf("drained = %d, want at least 500", drained)
	}
}
