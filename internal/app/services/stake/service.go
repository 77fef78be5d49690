// Package stake manages feeder deposits, withdrawals and the stake ledger.
package stake

import (
	"context"
	"fmt"
	"strings"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	"github.com/FeederNet/oracle_layer/internal/app/metrics"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/internal/app/system"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Service moves stake between the token contract and the ledger. Every
// fund-moving call takes the shared guard and confirms the token transfer
// before touching stored state.
type Service struct {
	feeders storage.FeederStore
	token   chain.TokenClient
	guard   *guard.Guard
	breaker *system.Breaker
	clock   chain.Clock
	params  config.Params
	vault   string
	log     *logger.Logger
}

// New constructs the stake service.
func New(feeders storage.FeederStore, token chain.TokenClient, g *guard.Guard, breaker *system.Breaker, clock chain.Clock, params config.Params, vault string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("stake")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Service{
		feeders: feeders,
		token:   token,
		guard:   g,
		breaker: breaker,
		clock:   clock,
		params:  params,
		vault:   vault,
		log:     log,
	}
}

// Deposit pulls amount from the feeder's wallet into the vault and credits
// their stake, creating the feeder record on first deposit.
func (s *Service) Deposit(ctx context.Context, address string, amount int64) (feeder.Feeder, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return feeder.Feeder{}, fmt.Errorf("address is required: %w", feed.ErrInvalidState)
	}
	if amount <= 0 {
		return feeder.Feeder{}, fmt.Errorf("deposit amount must be positive: %w", feed.ErrInvalidState)
	}
	if s.breaker.Paused() {
		return feeder.Feeder{}, feed.ErrPaused
	}

	release, err := s.guard.Enter()
	if err != nil {
		return feeder.Feeder{}, err
	}
	defer release()

	now := s.clock.Now()

	confirmed, err := s.token.TransferFrom(ctx, address, s.vault, amount)
	if err != nil {
		return feeder.Feeder{}, fmt.Errorf("deposit transfer: %w", err)
	}
	if !confirmed {
		return feeder.Feeder{}, fmt.Errorf("deposit of %d from %s: %w", amount, address, feed.ErrTransferFailure)
	}

	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		f = feeder.Feeder{Address: address, LastActiveAt: now, CreatedAt: now}
	}
	f.Stake += amount
	f.UpdatedAt = now

	if err := s.feeders.PutFeeder(ctx, f); err != nil {
		return feeder.Feeder{}, err
	}
	if err := s.feeders.AppendLedgerEntry(ctx, feeder.LedgerEntry{
		Address:      address,
		Type:         feeder.EntryDeposit,
		Amount:       amount,
		BalanceAfter: f.Stake,
		CreatedAt:    now,
	}); err != nil {
		return feeder.Feeder{}, err
	}

	metrics.RecordStakeMovement(string(feeder.EntryDeposit))
	s.log.WithField("address", address).
		WithField("amount", amount).
		WithField("stake", f.Stake).
		Info("stake deposited")
	return f, nil
}

// Withdraw releases amount from the feeder's stake back to their wallet.
// Stake stays locked for the cooldown period after the feeder's last
// protocol activity.
func (s *Service) Withdraw(ctx context.Context, address string, amount int64) (feeder.Feeder, error) {
	if amount <= 0 {
		return feeder.Feeder{}, fmt.Errorf("withdrawal amount must be positive: %w", feed.ErrInvalidState)
	}
	if s.breaker.Paused() {
		return feeder.Feeder{}, feed.ErrPaused
	}

	release, err := s.guard.Enter()
	if err != nil {
		return feeder.Feeder{}, err
	}
	defer release()

	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		return feeder.Feeder{}, err
	}
	if f.Stake < amount {
		return feeder.Feeder{}, fmt.Errorf("stake %d below withdrawal %d: %w", f.Stake, amount, feed.ErrInsufficientStake)
	}

	now := s.clock.Now()
	if unlockAt := f.LastActiveAt.Add(s.params.CooldownPeriod); now.Before(unlockAt) {
		return feeder.Feeder{}, fmt.Errorf("stake locked until %s: %w", unlockAt.Format("2006-01-02T15:04:05Z"), feed.ErrLocked)
	}

	confirmed, err := s.token.Transfer(ctx, address, amount)
	if err != nil {
		return feeder.Feeder{}, fmt.Errorf("withdrawal transfer: %w", err)
	}
	if !confirmed {
		return feeder.Feeder{}, fmt.Errorf("withdrawal of %d to %s: %w", amount, address, feed.ErrTransferFailure)
	}

	f.Stake -= amount
	f.UpdatedAt = now

	if err := s.feeders.PutFeeder(ctx, f); err != nil {
		return feeder.Feeder{}, err
	}
	if err := s.feeders.AppendLedgerEntry(ctx, feeder.LedgerEntry{
		Address:      address,
		Type:         feeder.EntryWithdrawal,
		Amount:       -amount,
		BalanceAfter: f.Stake,
		CreatedAt:    now,
	}); err != nil {
		return feeder.Feeder{}, err
	}

	metrics.RecordStakeMovement(string(feeder.EntryWithdrawal))
	s.log.WithField("address", address).
		WithField("amount", amount).
		WithField("stake", f.Stake).
		Info("stake withdrawn")
	return f, nil
}

// Get returns the feeder record for an address.
func (s *Service) Get(ctx context.Context, address string) (feeder.Feeder, error) {
	return s.feeders.GetFeeder(ctx, address)
}

// Ledger returns the stake movement history for an address.
func (s *Service) Ledger(ctx context.Context, address string) ([]feeder.LedgerEntry, error) {
	return s.feeders.ListLedgerEntries(ctx, address)
}

// List returns every feeder record.
func (s *Service) List(ctx context.Context) ([]feeder.Feeder, error) {
	return s.feeders.ListFeeders(ctx)
}
