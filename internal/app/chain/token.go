package chain

import (
	"context"
	"fmt"
	"sync"
)

// TokenClient moves the staking token between addresses. Transfer and
// TransferFrom report (false, nil) when the contract declined the movement,
// which callers surface as a transfer failure; a non-nil error means the
// contract could not be reached at all.
type TokenClient interface {
	BalanceOf(ctx context.Context, address string) (int64, error)
	// Transfer moves amount from the vault to an external address.
	Transfer(ctx context.Context, to string, amount int64) (confirmed bool, err error)
	// TransferFrom moves amount between two external addresses, typically
	// from a caller into the vault or treasury.
	TransferFrom(ctx context.Context, from, to string, amount int64) (confirmed bool, err error)
}

// MemoryBank is an in-process TokenClient for tests and local runs. The
// vault address is the source for Transfer.
type MemoryBank struct {
	mu       sync.Mutex
	vault    string
	balances map[string]int64
	failNext bool
}

var _ TokenClient = (*MemoryBank)(nil)

func NewMemoryBank(vault string) *MemoryBank {
	return &MemoryBank{vault: vault, balances: make(map[string]int64)}
}

// Mint credits an address out of thin air.
func (b *MemoryBank) Mint(address string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[address] += amount
}

// FailNext makes the next movement report unconfirmed.
func (b *MemoryBank) FailNext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = true
}

func (b *MemoryBank) BalanceOf(_ context.Context, address string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[address], nil
}

func (b *MemoryBank) Transfer(_ context.Context, to string, amount int64) (bool, error) {
	return b.move(b.vault, to, amount)
}

func (b *MemoryBank) TransferFrom(_ context.Context, from, to string, amount int64) (bool, error) {
	return b.move(from, to, amount)
}

func (b *MemoryBank) move(from, to string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("invalid transfer amount %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return false, nil
	}
	if b.balances[from] < amount {
		return false, nil
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return true, nil
}
