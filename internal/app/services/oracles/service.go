// Package oracles manages feed lifecycle: creation, admin membership, the
// public opening switch, paid reads, the pause switch and treasury claims.
package oracles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	"github.com/FeederNet/oracle_layer/internal/app/metrics"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/internal/app/system"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// ReadVersion tags the price payload format returned by paid reads.
const ReadVersion = "V1"

// Quote is the payload of a paid price read.
type Quote struct {
	Price       int64     `json:"price"`
	LastUpdated time.Time `json:"last_updated"`
	Version     string    `json:"version"`
}

// Service manages feeds. Operator-gated calls (Create, Pause, Claim) are
// restricted to the configured operator set; per-feed admin calls check the
// feed's admin list.
type Service struct {
	oracles   storage.OracleStore
	treasury  storage.TreasuryStore
	token     chain.TokenClient
	guard     *guard.Guard
	breaker   *system.Breaker
	clock     chain.Clock
	params    config.Params
	operators map[string]bool
	treasAddr string
	log       *logger.Logger
}

// New constructs the oracles service.
func New(oracles storage.OracleStore, treasury storage.TreasuryStore, token chain.TokenClient, g *guard.Guard, breaker *system.Breaker, clock chain.Clock, params config.Params, operators map[string]bool, treasuryAddress string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("oracles")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	if operators == nil {
		operators = make(map[string]bool)
	}
	return &Service{
		oracles:   oracles,
		treasury:  treasury,
		token:     token,
		guard:     g,
		breaker:   breaker,
		clock:     clock,
		params:    params,
		operators: operators,
		treasAddr: treasuryAddress,
		log:       log,
	}
}

// Create registers a feed with its seed filler set. The creator becomes the
// first admin and the quorum equals the seed set size.
func (s *Service) Create(ctx context.Context, caller, symbol string, seedFillers []string, pricePerRead int64) (feed.Oracle, error) {
	if s.breaker.Paused() {
		return feed.Oracle{}, feed.ErrPaused
	}
	if !s.operators[caller] {
		return feed.Oracle{}, fmt.Errorf("%s is not an operator: %w", caller, feed.ErrUnauthorized)
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return feed.Oracle{}, fmt.Errorf("symbol is required: %w", feed.ErrInvalidState)
	}
	if pricePerRead < 0 {
		return feed.Oracle{}, fmt.Errorf("price_per_read cannot be negative: %w", feed.ErrInvalidState)
	}
	if len(seedFillers) == 0 || len(seedFillers) > s.params.MaxSeedFillers {
		return feed.Oracle{}, fmt.Errorf("seed filler count %d outside 1..%d: %w", len(seedFillers), s.params.MaxSeedFillers, feed.ErrInvalidState)
	}
	unique := make(map[string]bool, len(seedFillers))
	for _, addr := range seedFillers {
		addr = strings.TrimSpace(addr)
		if addr == "" || unique[addr] {
			return feed.Oracle{}, fmt.Errorf("seed fillers must be distinct and non-empty: %w", feed.ErrInvalidState)
		}
		unique[addr] = true
	}

	now := s.clock.Now()
	o := feed.Oracle{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		OnlySeeders:  true,
		QuorumSize:   len(seedFillers),
		PricePerRead: pricePerRead,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	seed := make([]feed.Filler, 0, len(seedFillers))
	for _, addr := range seedFillers {
		seed = append(seed, feed.Filler{OracleID: o.ID, Address: strings.TrimSpace(addr), Role: feed.RoleSeed, AddedAt: now})
	}
	admins := []feed.Admin{{OracleID: o.ID, Address: caller, AddedAt: now}}

	if err := s.oracles.CreateOracle(ctx, o, seed, admins); err != nil {
		return feed.Oracle{}, err
	}

	s.log.WithField("oracle_id", o.ID).
		WithField("symbol", symbol).
		WithField("quorum_size", o.QuorumSize).
		Info("oracle created")
	return o, nil
}

// OpenToPublic lifts the seed-only restriction. The switch is one-way.
func (s *Service) OpenToPublic(ctx context.Context, oracleID, caller string) (feed.Oracle, error) {
	if s.breaker.Paused() {
		return feed.Oracle{}, feed.ErrPaused
	}
	if err := s.requireAdmin(ctx, oracleID, caller); err != nil {
		return feed.Oracle{}, err
	}

	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return feed.Oracle{}, err
	}
	if !o.OnlySeeders {
		return feed.Oracle{}, fmt.Errorf("feed %s already public: %w", oracleID, feed.ErrInvalidState)
	}

	o.OnlySeeders = false
	o.UpdatedAt = s.clock.Now()
	if err := s.oracles.UpdateOracle(ctx, o); err != nil {
		return feed.Oracle{}, err
	}

	s.log.WithField("oracle_id", oracleID).Info("feed opened to public")
	return o, nil
}

// ReadPrice serves a paid price read. The payment goes to the treasury
// address; feeds with a zero read price are free. Reads stay available
// while the system is paused.
func (s *Service) ReadPrice(ctx context.Context, oracleID, reader string, payment int64) (Quote, error) {
	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return Quote{}, err
	}
	if payment < o.PricePerRead {
		return Quote{}, fmt.Errorf("payment %d below read price %d: %w", payment, o.PricePerRead, feed.ErrInsufficientPayment)
	}

	if o.PricePerRead > 0 {
		release, err := s.guard.Enter()
		if err != nil {
			return Quote{}, err
		}
		defer release()

		confirmed, err := s.token.TransferFrom(ctx, reader, s.treasAddr, payment)
		if err != nil {
			return Quote{}, fmt.Errorf("read payment transfer: %w", err)
		}
		if !confirmed {
			return Quote{}, fmt.Errorf("read payment of %d from %s: %w", payment, reader, feed.ErrInsufficientPayment)
		}
	}

	metrics.RecordPriceRead(oracleID)
	return Quote{Price: o.Price, LastUpdated: o.LastUpdated, Version: ReadVersion}, nil
}

// AddAdmin grants feed admin rights to an address.
func (s *Service) AddAdmin(ctx context.Context, oracleID, caller, newAdmin string) error {
	if s.breaker.Paused() {
		return feed.ErrPaused
	}
	if err := s.requireAdmin(ctx, oracleID, caller); err != nil {
		return err
	}
	newAdmin = strings.TrimSpace(newAdmin)
	if newAdmin == "" {
		return fmt.Errorf("admin address is required: %w", feed.ErrInvalidState)
	}

	if err := s.oracles.PutAdmin(ctx, feed.Admin{OracleID: oracleID, Address: newAdmin, AddedAt: s.clock.Now()}); err != nil {
		return err
	}
	s.log.WithField("oracle_id", oracleID).WithField("admin", newAdmin).Info("admin added")
	return nil
}

// RemoveAdmin revokes admin rights. Admins cannot remove themselves, so a
// feed always keeps at least one admin.
func (s *Service) RemoveAdmin(ctx context.Context, oracleID, caller, target string) error {
	if s.breaker.Paused() {
		return feed.ErrPaused
	}
	if err := s.requireAdmin(ctx, oracleID, caller); err != nil {
		return err
	}
	if caller == target {
		return fmt.Errorf("admins cannot remove themselves: %w", feed.ErrInvalidState)
	}

	if err := s.oracles.RemoveAdmin(ctx, oracleID, target); err != nil {
		return err
	}
	s.log.WithField("oracle_id", oracleID).WithField("admin", target).Info("admin removed")
	return nil
}

// Pause trips the global breaker. Operator only.
func (s *Service) Pause(ctx context.Context, caller string) error {
	if !s.operators[caller] {
		return fmt.Errorf("%s is not an operator: %w", caller, feed.ErrUnauthorized)
	}
	s.breaker.Pause()
	s.log.WithField("caller", caller).Warn("system paused")
	return nil
}

// Unpause clears the global breaker. Operator only.
func (s *Service) Unpause(ctx context.Context, caller string) error {
	if !s.operators[caller] {
		return fmt.Errorf("%s is not an operator: %w", caller, feed.ErrUnauthorized)
	}
	s.breaker.Resume()
	s.log.WithField("caller", caller).Info("system resumed")
	return nil
}

// ClaimSlashedFunds pays the accumulated slash pool out of the vault to the
// destination address and zeroes the pool.
func (s *Service) ClaimSlashedFunds(ctx context.Context, caller, to string) (int64, error) {
	if !s.operators[caller] {
		return 0, fmt.Errorf("%s is not an operator: %w", caller, feed.ErrUnauthorized)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return 0, fmt.Errorf("destination address is required: %w", feed.ErrInvalidState)
	}

	release, err := s.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	amount, err := s.treasury.PoolBalance(ctx)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("slash pool is empty: %w", feed.ErrInvalidState)
	}

	confirmed, err := s.token.Transfer(ctx, to, amount)
	if err != nil {
		return 0, fmt.Errorf("claim transfer: %w", err)
	}
	if !confirmed {
		return 0, fmt.Errorf("claim of %d to %s: %w", amount, to, feed.ErrTransferFailure)
	}

	if _, err := s.treasury.DrainPool(ctx); err != nil {
		return 0, err
	}

	s.log.WithField("caller", caller).
		WithField("to", to).
		WithField("amount", amount).
		Info("slashed funds claimed")
	return amount, nil
}

// Get fetches a feed by identifier.
func (s *Service) Get(ctx context.Context, oracleID string) (feed.Oracle, error) {
	return s.oracles.GetOracle(ctx, oracleID)
}

// List returns every feed.
func (s *Service) List(ctx context.Context) ([]feed.Oracle, error) {
	return s.oracles.ListOracles(ctx)
}

// ListFillers returns the filler set of a feed.
func (s *Service) ListFillers(ctx context.Context, oracleID string) ([]feed.Filler, error) {
	return s.oracles.ListFillers(ctx, oracleID)
}

// ListAdmins returns the admin set of a feed.
func (s *Service) ListAdmins(ctx context.Context, oracleID string) ([]feed.Admin, error) {
	return s.oracles.ListAdmins(ctx, oracleID)
}

func (s *Service) requireAdmin(ctx context.Context, oracleID, caller string) error {
	if _, err := s.oracles.GetAdmin(ctx, oracleID, caller); err != nil {
		return fmt.Errorf("%s is not an admin of %s: %w", caller, oracleID, feed.ErrUnauthorized)
	}
	return nil
}
