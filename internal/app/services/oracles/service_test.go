package oracles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	"github.com/FeederNet/oracle_layer/internal/app/storage/memory"
	"github.com/FeederNet/oracle_layer/internal/app/system"
)

const (
	vault    = "test-vault"
	treasury = "test-treasury"
)

type env struct {
	store   *memory.Store
	bank    *chain.MemoryBank
	clock   *chain.ManualClock
	breaker *system.Breaker
	svc     *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	bank := chain.NewMemoryBank(vault)
	clock := chain.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	breaker := system.NewBreaker()
	params := config.DefaultParams()
	params.MaxSeedFillers = 3
	operators := map[string]bool{"op": true}
	svc := New(store, store, bank, guard.New(), breaker, clock, params, operators, treasury, nil)
	return &env{store: store, bank: bank, clock: clock, breaker: breaker, svc: svc}
}

func TestService_Create(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a", "b", "c"}, 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !o.OnlySeeders || o.QuorumSize != 3 || o.PricePerRead != 7 {
		t.Fatalf("unexpected oracle: %#v", o)
	}

	fillers, err := e.svc.ListFillers(ctx, o.ID)
	if err != nil {
		t.Fatalf("list fillers: %v", err)
	}
	if len(fillers) != 3 {
		t.Fatalf("fillers = %d, want 3", len(fillers))
	}
	for _, f := range fillers {
		if f.Role != feed.RoleSeed {
			t.Fatalf("filler %s role = %s, want seed", f.Address, f.Role)
		}
	}

	// The creator holds the first admin seat.
	admins, err := e.svc.ListAdmins(ctx, o.ID)
	if err != nil {
		t.Fatalf("list admins: %v", err)
	}
	if len(admins) != 1 || admins[0].Address != "op" {
		t.Fatalf("unexpected admins: %#v", admins)
	}
}

func TestService_CreateRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Create(ctx, "mallory", "BTC/USD", []string{"a"}, 0); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-operator create should fail, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "op", "  ", []string{"a"}, 0); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("blank symbol should fail, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "op", "BTC/USD", nil, 0); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("empty seed set should fail, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a", "b", "c", "d"}, 0); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("oversized seed set should fail, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a", "a"}, 0); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("duplicate seed fillers should fail, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, -1); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("negative read price should fail, got %v", err)
	}
}

func TestService_OpenToPublic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.svc.OpenToPublic(ctx, o.ID, "mallory"); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-admin open should fail, got %v", err)
	}

	o, err = e.svc.OpenToPublic(ctx, o.ID, "op")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if o.OnlySeeders {
		t.Fatal("feed should be public")
	}

	// One-way switch.
	if _, err := e.svc.OpenToPublic(ctx, o.ID, "op"); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("re-open should fail, got %v", err)
	}
}

func TestService_Admins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := e.svc.AddAdmin(ctx, o.ID, "mallory", "friend"); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-admin add should fail, got %v", err)
	}
	if err := e.svc.AddAdmin(ctx, o.ID, "op", "second"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if err := e.svc.RemoveAdmin(ctx, o.ID, "second", "second"); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("self removal should fail, got %v", err)
	}
	if err := e.svc.RemoveAdmin(ctx, o.ID, "op", "second"); err != nil {
		t.Fatalf("remove admin: %v", err)
	}

	admins, _ := e.svc.ListAdmins(ctx, o.ID)
	if len(admins) != 1 || admins[0].Address != "op" {
		t.Fatalf("unexpected admins after removal: %#v", admins)
	}
}

func TestService_ReadPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	o.Price = 5000
	o.LastUpdated = e.clock.Now()
	if err := e.store.UpdateOracle(ctx, o); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	e.bank.Mint("reader", 100)

	if _, err := e.svc.ReadPrice(ctx, o.ID, "reader", 9); !errors.Is(err, feed.ErrInsufficientPayment) {
		t.Fatalf("underpaid read should fail, got %v", err)
	}

	q, err := e.svc.ReadPrice(ctx, o.ID, "reader", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if q.Price != 5000 || q.Version != ReadVersion {
		t.Fatalf("unexpected quote: %#v", q)
	}
	if bal, _ := e.bank.BalanceOf(ctx, treasury); bal != 10 {
		t.Fatalf("treasury balance = %d, want the read fee", bal)
	}

	if _, err := e.svc.ReadPrice(ctx, o.ID, "pauper", 10); !errors.Is(err, feed.ErrInsufficientPayment) {
		t.Fatalf("unfunded read should fail, got %v", err)
	}

	// Reads stay up while the breaker is tripped.
	e.breaker.Pause()
	if _, err := e.svc.ReadPrice(ctx, o.ID, "reader", 10); err != nil {
		t.Fatalf("read while paused: %v", err)
	}
}

func TestService_ReadPriceFreeFeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.ReadPrice(ctx, o.ID, "anyone", 0); err != nil {
		t.Fatalf("free read: %v", err)
	}
}

func TestService_PauseUnpause(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.svc.Pause(ctx, "mallory"); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-operator pause should fail, got %v", err)
	}
	if err := e.svc.Pause(ctx, "op"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !e.breaker.Paused() {
		t.Fatal("breaker should be tripped")
	}
	if _, err := e.svc.Create(ctx, "op", "BTC/USD", []string{"a"}, 0); !errors.Is(err, feed.ErrPaused) {
		t.Fatalf("create while paused should fail, got %v", err)
	}
	if err := e.svc.Unpause(ctx, "op"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if e.breaker.Paused() {
		t.Fatal("breaker should be clear")
	}
}

func TestService_ClaimSlashedFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.ClaimSlashedFunds(ctx, "op", "cold-wallet"); !errors.Is(err, feed.ErrInvalidState) {
		t.Fatalf("claim on empty pool should fail, got %v", err)
	}
	if _, err := e.svc.ClaimSlashedFunds(ctx, "mallory", "cold-wallet"); !errors.Is(err, feed.ErrUnauthorized) {
		t.Fatalf("non-operator claim should fail, got %v", err)
	}

	if err := e.store.AddToPool(ctx, 50); err != nil {
		t.Fatalf("add to pool: %v", err)
	}
	e.bank.Mint(vault, 50)

	amount, err := e.svc.ClaimSlashedFunds(ctx, "op", "cold-wallet")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount != 50 {
		t.Fatalf("claimed = %d, want 50", amount)
	}
	if bal, _ := e.bank.BalanceOf(ctx, "cold-wallet"); bal != 50 {
		t.Fatalf("destination balance = %d, want 50", bal)
	}
	pool, _ := e.store.PoolBalance(ctx)
	if pool != 0 {
		t.Fatalf("pool = %d, want drained", pool)
	}
}
