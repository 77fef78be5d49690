// Package reputation tracks yellow cards and derives expulsion status.
package reputation

import (
	"context"
	"fmt"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Service manages feeder infractions. An expelled feeder keeps its record
// and stake so penalties remain collectable; the infraction that crosses
// the expulsion threshold shrinks the affected feed's quorum by one, and
// that shrink is never reversed.
type Service struct {
	feeders storage.FeederStore
	oracles storage.OracleStore
	clock   chain.Clock
	params  config.Params
	log     *logger.Logger
}

// New constructs the reputation service.
func New(feeders storage.FeederStore, oracles storage.OracleStore, clock chain.Clock, params config.Params, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reputation")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Service{feeders: feeders, oracles: oracles, clock: clock, params: params, log: log}
}

// Penalize issues one yellow card to the feeder for misbehavior on the
// given feed. When the card pushes the feeder past the expulsion threshold
// the feed's quorum shrinks by one, unless that would leave it empty.
func (s *Service) Penalize(ctx context.Context, address, oracleID, reason string) (feeder.Feeder, error) {
	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		return feeder.Feeder{}, err
	}

	wasExpelled := f.Expelled(s.params.ExpulsionThreshold)
	now := s.clock.Now()
	f.YellowCards++
	f.UpdatedAt = now
	if err := s.feeders.PutFeeder(ctx, f); err != nil {
		return feeder.Feeder{}, err
	}

	s.log.WithField("address", address).
		WithField("oracle_id", oracleID).
		WithField("yellow_cards", f.YellowCards).
		WithField("reason", reason).
		Warn("feeder penalized")

	if !wasExpelled && f.Expelled(s.params.ExpulsionThreshold) {
		o, err := s.oracles.GetOracle(ctx, oracleID)
		if err != nil {
			return feeder.Feeder{}, err
		}
		if o.QuorumSize > 1 {
			o.QuorumSize--
			o.UpdatedAt = now
			if err := s.oracles.UpdateOracle(ctx, o); err != nil {
				return feeder.Feeder{}, err
			}
		}
		s.log.WithField("address", address).
			WithField("oracle_id", oracleID).
			WithField("quorum_size", o.QuorumSize).
			Warn("feeder expelled")
	}
	return f, nil
}

// Reset clears the feeder's yellow cards. Expulsion side effects such as a
// shrunk quorum are not reversed.
func (s *Service) Reset(ctx context.Context, address string) (feeder.Feeder, error) {
	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		return feeder.Feeder{}, err
	}
	if f.YellowCards == 0 {
		return f, nil
	}

	f.YellowCards = 0
	f.UpdatedAt = s.clock.Now()
	if err := s.feeders.PutFeeder(ctx, f); err != nil {
		return feeder.Feeder{}, err
	}
	s.log.WithField("address", address).Info("yellow cards reset")
	return f, nil
}

// Cards returns the feeder's current yellow card count.
func (s *Service) Cards(ctx context.Context, address string) (int, error) {
	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		return 0, err
	}
	return f.YellowCards, nil
}

// CheckActive fails when the feeder is expelled or staked below the
// participation minimum. Used by the voting paths as the common
// eligibility gate.
func (s *Service) CheckActive(ctx context.Context, address string) (feeder.Feeder, error) {
	f, err := s.feeders.GetFeeder(ctx, address)
	if err != nil {
		return feeder.Feeder{}, err
	}
	if f.Expelled(s.params.ExpulsionThreshold) {
		return feeder.Feeder{}, fmt.Errorf("feeder %s: %w", address, feed.ErrExpelled)
	}
	if f.Stake < s.params.MinStake {
		return feeder.Feeder{}, fmt.Errorf("feeder %s staked %d below minimum %d: %w", address, f.Stake, s.params.MinStake, feed.ErrInsufficientStake)
	}
	return f, nil
}
