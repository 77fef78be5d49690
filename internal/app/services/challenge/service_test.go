package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/services/reputation"
	"github.com/FeederNet/oracle_layer/internal/app/storage/memory"
	"github.com/FeederNet/oracle_layer/internal/app/system"
)

func testParams() config.Params {
	p := config.DefaultParams()
	p.MinStake = 100
	p.DeviationBps = 100
	p.RateLimitWindow = time.Hour
	p.ExpulsionThreshold = 5
	return p
}

type env struct {
	store   *memory.Store
	clock   *chain.ManualClock
	breaker *system.Breaker
	svc     *Service
}

func newEnv(t *testing.T, seedFillers []string) *env {
	t.Helper()
	store := memory.New()
	clock := chain.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	breaker := system.NewBreaker()
	params := testParams()
	rep := reputation.New(store, store, clock, params, nil)
	svc := New(store, store, store, rep, breaker, clock, params, nil)

	now := clock.Now()
	seed := make([]feed.Filler, 0, len(seedFillers))
	for _, addr := range seedFillers {
		seed = append(seed, feed.Filler{OracleID: "feed-1", Address: addr, Role: feed.RoleSeed, AddedAt: now})
		f := feeder.Feeder{Address: addr, Stake: 1000, LastActiveAt: now, CreatedAt: now, UpdatedAt: now}
		if err := store.PutFeeder(context.Background(), f); err != nil {
			t.Fatalf("put feeder %s: %v", addr, err)
		}
	}
	o := feed.Oracle{ID: "feed-1", Symbol: "BTC/USD", OnlySeeders: true, QuorumSize: len(seedFillers), CreatedAt: now, UpdatedAt: now}
	if err := store.CreateOracle(context.Background(), o, seed, []feed.Admin{{OracleID: "feed-1", Address: "op", AddedAt: now}}); err != nil {
		t.Fatalf("create oracle: %v", err)
	}
	return &env{store: store, clock: clock, breaker: breaker, svc: svc}
}

func TestService_ApproveFlow(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if r.Approvals != 1 || r.Resolved() {
		t.Fatalf("unexpected round after propose: %#v", r)
	}

	if _, err := e.svc.Propose(ctx, "feed-1", "bob", 6000); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("second propose should fail while round open, got %v", err)
	}

	r, err = e.svc.Vote(ctx, r.ID, "bob", true)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if r.Outcome != feed.OutcomeApproved {
		t.Fatalf("outcome = %s, want approved", r.Outcome)
	}

	o, err := e.store.GetOracle(ctx, "feed-1")
	if err != nil {
		t.Fatalf("get oracle: %v", err)
	}
	if o.Price != 5000 {
		t.Fatalf("price = %d, want 5000", o.Price)
	}
	if !o.LastUpdated.Equal(e.clock.Now()) {
		t.Fatalf("last updated = %s, want %s", o.LastUpdated, e.clock.Now())
	}

	if _, err := e.svc.Vote(ctx, r.ID, "carol", true); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("vote on resolved round should fail, got %v", err)
	}
	if _, err := e.svc.OpenRound(ctx, "feed-1"); !errors.Is(err, feed.ErrNotFound) {
		t.Fatalf("open round should be gone, got %v", err)
	}
}

func TestService_RejectPenalizesProposer(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "bob", false); err != nil {
		t.Fatalf("vote bob: %v", err)
	}
	r, err = e.svc.Vote(ctx, r.ID, "carol", false)
	if err != nil {
		t.Fatalf("vote carol: %v", err)
	}
	if r.Outcome != feed.OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", r.Outcome)
	}

	f, err := e.store.GetFeeder(ctx, "alice")
	if err != nil {
		t.Fatalf("get feeder: %v", err)
	}
	if f.YellowCards != 1 {
		t.Fatalf("yellow cards = %d, want 1", f.YellowCards)
	}

	o, _ := e.store.GetOracle(ctx, "feed-1")
	if o.Price != 0 {
		t.Fatalf("price should be unchanged, got %d", o.Price)
	}
}

func TestService_RejectExpulsionShrinksQuorum(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	// Alice sits exactly at the threshold, so a rejected round expels her.
	f, _ := e.store.GetFeeder(ctx, "alice")
	f.YellowCards = 5
	_ = e.store.PutFeeder(ctx, f)

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "bob", false); err != nil {
		t.Fatalf("vote bob: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "carol", false); err != nil {
		t.Fatalf("vote carol: %v", err)
	}

	f, _ = e.store.GetFeeder(ctx, "alice")
	if f.YellowCards != 6 {
		t.Fatalf("yellow cards = %d, want 6", f.YellowCards)
	}
	o, _ := e.store.GetOracle(ctx, "feed-1")
	if o.QuorumSize != 2 {
		t.Fatalf("quorum = %d after expulsion, want 2", o.QuorumSize)
	}
	if _, err := e.svc.Propose(ctx, "feed-1", "alice", 6000); !errors.Is(err, feed.ErrExpelled) {
		t.Fatalf("expelled proposer should be rejected, got %v", err)
	}
}

func TestService_DoubleVote(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "alice", true); !errors.Is(err, feed.ErrDoubleVote) {
		t.Fatalf("proposer re-vote should fail with double vote, got %v", err)
	}
}

func TestService_RateLimit(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// 5050 is exactly 1% away and stays inside the closed band.
	if _, err := e.svc.Propose(ctx, "feed-1", "bob", 5050); !errors.Is(err, feed.ErrRateLimited) {
		t.Fatalf("in-band propose should be rate limited, got %v", err)
	}
	// 5051 escapes the band and always gets a round.
	if _, err := e.svc.Propose(ctx, "feed-1", "bob", 5051); err != nil {
		t.Fatalf("out-of-band propose: %v", err)
	}
}

func TestService_RateLimitWindowExpires(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	e.clock.Advance(2 * time.Hour)
	if _, err := e.svc.Propose(ctx, "feed-1", "carol", 5010); err != nil {
		t.Fatalf("in-band propose after window: %v", err)
	}
}

func TestService_QuorumOfOneResolvesImmediately(t *testing.T) {
	e := newEnv(t, []string{"alice"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 7777)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if r.Outcome != feed.OutcomeApproved {
		t.Fatalf("outcome = %s, want approved", r.Outcome)
	}
	o, _ := e.store.GetOracle(ctx, "feed-1")
	if o.Price != 7777 {
		t.Fatalf("price = %d, want 7777", o.Price)
	}
}

func TestService_ProposerEligibility(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	ctx := context.Background()

	if _, err := e.svc.Propose(ctx, "feed-1", "mallory", 5000); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-filler propose should fail, got %v", err)
	}

	f, _ := e.store.GetFeeder(ctx, "alice")
	f.YellowCards = 6
	_ = e.store.PutFeeder(ctx, f)
	if _, err := e.svc.Propose(ctx, "feed-1", "alice", 5000); !errors.Is(err, feed.ErrExpelled) {
		t.Fatalf("expelled propose should fail, got %v", err)
	}

	f, _ = e.store.GetFeeder(ctx, "bob")
	f.Stake = 10
	_ = e.store.PutFeeder(ctx, f)
	if _, err := e.svc.Propose(ctx, "feed-1", "bob", 5000); !errors.Is(err, feed.ErrInsufficientStake) {
		t.Fatalf("understaked propose should fail, got %v", err)
	}
}

func TestService_Paused(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol"})
	e.breaker.Pause()

	if _, err := e.svc.Propose(context.Background(), "feed-1", "alice", 5000); !errors.Is(err, feed.ErrPaused) {
		t.Fatalf("propose while paused should fail, got %v", err)
	}
}

func TestMajorityThreshold(t *testing.T) {
	cases := []struct{ quorum, want int }{
		{1, 1}, {2, 2}, {3, 2}, {4, 3}, {5, 3}, {6, 4}, {7, 4},
	}
	for _, c := range cases {
		if got := feed.MajorityThreshold(c.quorum); got != c.want {
			t.Fatalf("threshold(%d) = %d, want %d", c.quorum, got, c.want)
		}
	}
}

func TestService_ThresholdTracksLiveQuorum(t *testing.T) {
	e := newEnv(t, []string{"alice", "bob", "carol", "dave", "erin"})
	ctx := context.Background()

	r, err := e.svc.Propose(ctx, "feed-1", "alice", 5000)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.svc.Vote(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("vote bob: %v", err)
	}

	// A filler drops out mid-round; the threshold shrinks with the quorum.
	o, _ := e.store.GetOracle(ctx, "feed-1")
	o.QuorumSize--
	if err := e.store.RemoveFiller(ctx, o, "erin"); err != nil {
		t.Fatalf("remove filler: %v", err)
	}

	r, err = e.svc.Vote(ctx, r.ID, "carol", true)
	if err != nil {
		t.Fatalf("vote carol: %v", err)
	}
	if r.Outcome != feed.OutcomeApproved {
		t.Fatalf("outcome = %s, want approved at shrunk threshold", r.Outcome)
	}
}
