// Package dispute handles rat-out reports against votes in resolved rounds.
package dispute

import (
	"context"
	"fmt"

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

// Service resolves rat-out reports. A vote that sided against the round's
// final outcome earns its caster a yellow card and the reporter a reward;
// the ballot is then marked disputed so it cannot be reported twice. The
// disputed mark is written last, so a failed call stays retryable.
type Service struct {
	rounds   storage.RoundStore
	oracles  storage.OracleStore
	feeders  storage.FeederStore
	treasury storage.TreasuryStore
	token    chain.TokenClient
	guard    *guard.Guard
	breaker  *system.Breaker
	clock    chain.Clock
	params   config.Params
	log      *logger.Logger
}

// New constructs the dispute service.
func New(rounds storage.RoundStore, oracles storage.OracleStore, feeders storage.FeederStore, treasury storage.TreasuryStore, token chain.TokenClient, g *guard.Guard, breaker *system.Breaker, clock chain.Clock, params config.Params, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dispute")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Service{
		rounds:   rounds,
		oracles:  oracles,
		feeders:  feeders,
		treasury: treasury,
		token:    token,
		guard:    g,
		breaker:  breaker,
		clock:    clock,
		params:   params,
		log:      log,
	}
}

// RatOut reports the accused's vote in a resolved round. Repeat offenders
// already past the expulsion threshold additionally forfeit the slash
// penalty from their stake into the claimable pool.
func (s *Service) RatOut(ctx context.Context, roundID, accuser, accused string) (feeder.Feeder, error) {
	if s.breaker.Paused() {
		return feeder.Feeder{}, feed.ErrPaused
	}
	if accuser == accused {
		return feeder.Feeder{}, fmt.Errorf("cannot report own vote: %w", feed.ErrInvalidState)
	}

	r, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return feeder.Feeder{}, err
	}
	if !r.Resolved() {
		return feeder.Feeder{}, fmt.Errorf("round %s still pending: %w", roundID, feed.ErrInvalidState)
	}
	if _, err := s.oracles.GetFiller(ctx, r.OracleID, accuser); err != nil {
		return feeder.Feeder{}, fmt.Errorf("%s not a filler on %s: %w", accuser, r.OracleID, feed.ErrUnauthorized)
	}

	vote, err := s.rounds.GetVote(ctx, roundID, accused)
	if err != nil {
		return feeder.Feeder{}, err
	}
	if vote.Disputed {
		return feeder.Feeder{}, fmt.Errorf("vote by %s in round %s: %w", accused, roundID, feed.ErrAlreadyDisputed)
	}

	wonWithRound := (r.Outcome == feed.OutcomeApproved) == vote.Approve
	if wonWithRound {
		metrics.RecordDispute("rejected")
		return feeder.Feeder{}, fmt.Errorf("%s voted with the outcome of round %s: %w", accused, roundID, feed.ErrFalseAccusation)
	}

	release, err := s.guard.Enter()
	if err != nil {
		return feeder.Feeder{}, err
	}
	defer release()

	confirmed, err := s.token.Transfer(ctx, accuser, s.params.RatOutReward)
	if err != nil {
		return feeder.Feeder{}, fmt.Errorf("rat-out reward transfer: %w", err)
	}
	if !confirmed {
		return feeder.Feeder{}, fmt.Errorf("rat-out reward of %d to %s: %w", s.params.RatOutReward, accuser, feed.ErrTransferFailure)
	}

	f, err := s.feeders.GetFeeder(ctx, accused)
	if err != nil {
		return feeder.Feeder{}, err
	}

	now := s.clock.Now()
	wasExpelled := f.Expelled(s.params.ExpulsionThreshold)
	priorCards := f.YellowCards
	f.YellowCards++
	f.UpdatedAt = now

	var slashed int64
	if priorCards > s.params.ExpulsionThreshold {
		slashed = f.ApplySlash(s.params.SlashPenalty)
	}

	if err := s.feeders.PutFeeder(ctx, f); err != nil {
		return feeder.Feeder{}, err
	}
	if !wasExpelled && f.Expelled(s.params.ExpulsionThreshold) {
		o, err := s.oracles.GetOracle(ctx, r.OracleID)
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
		s.log.WithField("address", accused).
			WithField("oracle_id", r.OracleID).
			WithField("quorum_size", o.QuorumSize).
			Warn("accused expelled, quorum shrunk")
	}
	if slashed > 0 {
		if err := s.treasury.AddToPool(ctx, slashed); err != nil {
			return feeder.Feeder{}, err
		}
		if err := s.feeders.AppendLedgerEntry(ctx, feeder.LedgerEntry{
			Address:      accused,
			Type:         feeder.EntrySlash,
			Amount:       -slashed,
			BalanceAfter: f.Stake,
			ReferenceID:  roundID,
			CreatedAt:    now,
		}); err != nil {
			return feeder.Feeder{}, err
		}
		metrics.RecordStakeMovement(string(feeder.EntrySlash))
	}

	if err := s.rounds.MarkVoteDisputed(ctx, roundID, accused); err != nil {
		return feeder.Feeder{}, err
	}

	metrics.RecordDispute("upheld")
	s.log.WithField("round_id", roundID).
		WithField("accuser", accuser).
		WithField("accused", accused).
		WithField("yellow_cards", f.YellowCards).
		WithField("slashed", slashed).
		Warn("vote disputed")
	return f, nil
}
