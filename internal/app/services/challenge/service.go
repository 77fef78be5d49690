// Package challenge runs the propose-and-vote consensus that is the only
// path by which a feed's price changes.
package challenge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/metrics"
	"github.com/FeederNet/oracle_layer/internal/app/services/reputation"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/internal/app/system"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Service drives challenge rounds. A feed holds at most one pending round;
// the proposer's ballot is an implicit approval, the majority threshold is
// re-evaluated against the live quorum on every vote, and a rejected round
// costs the proposer a yellow card.
type Service struct {
	oracles    storage.OracleStore
	rounds     storage.RoundStore
	feeders    storage.FeederStore
	reputation *reputation.Service
	breaker    *system.Breaker
	clock      chain.Clock
	params     config.Params
	log        *logger.Logger
}

// New constructs the challenge service.
func New(oracles storage.OracleStore, rounds storage.RoundStore, feeders storage.FeederStore, rep *reputation.Service, breaker *system.Breaker, clock chain.Clock, params config.Params, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("challenge")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Service{
		oracles:    oracles,
		rounds:     rounds,
		feeders:    feeders,
		reputation: rep,
		breaker:    breaker,
		clock:      clock,
		params:     params,
		log:        log,
	}
}

// Propose opens a round for a new price. Proposals inside the deviation
// band of a recently updated price are rate limited; a price that moved
// more than the band always gets a round. On a quorum of one the round
// resolves immediately.
func (s *Service) Propose(ctx context.Context, oracleID, proposer string, price int64) (feed.Round, error) {
	if price <= 0 {
		return feed.Round{}, fmt.Errorf("proposed price must be positive: %w", feed.ErrInvalidState)
	}
	if s.breaker.Paused() {
		return feed.Round{}, feed.ErrPaused
	}

	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return feed.Round{}, err
	}
	if _, err := s.oracles.GetFiller(ctx, oracleID, proposer); err != nil {
		return feed.Round{}, fmt.Errorf("%s not a filler on %s: %w", proposer, oracleID, feed.ErrUnauthorized)
	}
	proposerRec, err := s.reputation.CheckActive(ctx, proposer)
	if err != nil {
		return feed.Round{}, err
	}

	if open, err := s.rounds.GetOpenRound(ctx, oracleID); err == nil {
		return feed.Round{}, fmt.Errorf("round %s still pending on %s: %w", open.ID, oracleID, feed.ErrInvalidState)
	}

	now := s.clock.Now()
	if feed.WithinBand(o.Price, price, s.params.DeviationBps) && now.Sub(o.LastUpdated) < s.params.RateLimitWindow {
		return feed.Round{}, fmt.Errorf("price %d within band of %d updated at %s: %w", price, o.Price, o.LastUpdated.Format("15:04:05"), feed.ErrRateLimited)
	}

	r := feed.Round{
		ID:            uuid.NewString(),
		OracleID:      oracleID,
		ProposedPrice: price,
		Proposer:      proposer,
		Approvals:     1,
		Outcome:       feed.OutcomePending,
		CreatedAt:     now,
	}
	vote := feed.Vote{RoundID: r.ID, Voter: proposer, Approve: true, CastAt: now}
	if err := s.rounds.CreateRound(ctx, r, vote); err != nil {
		return feed.Round{}, err
	}

	proposerRec.LastActiveAt = now
	proposerRec.UpdatedAt = now
	if err := s.feeders.PutFeeder(ctx, proposerRec); err != nil {
		return feed.Round{}, err
	}

	s.log.WithField("oracle_id", oracleID).
		WithField("round_id", r.ID).
		WithField("proposer", proposer).
		WithField("price", price).
		Info("round proposed")
	metrics.RecordVote(true)

	if r.Approvals >= feed.MajorityThreshold(o.QuorumSize) {
		return s.resolve(ctx, r, o, feed.OutcomeApproved, nil)
	}
	return r, nil
}

// Vote casts a ballot in a pending round. When either tally reaches the
// majority threshold the round resolves; an approval writes the price, a
// rejection penalizes the proposer.
func (s *Service) Vote(ctx context.Context, roundID, voter string, approve bool) (feed.Round, error) {
	if s.breaker.Paused() {
		return feed.Round{}, feed.ErrPaused
	}

	r, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return feed.Round{}, err
	}
	if r.Resolved() {
		return feed.Round{}, fmt.Errorf("round %s already %s: %w", roundID, r.Outcome, feed.ErrInvalidState)
	}

	o, err := s.oracles.GetOracle(ctx, r.OracleID)
	if err != nil {
		return feed.Round{}, err
	}
	if _, err := s.oracles.GetFiller(ctx, r.OracleID, voter); err != nil {
		return feed.Round{}, fmt.Errorf("%s not a filler on %s: %w", voter, r.OracleID, feed.ErrUnauthorized)
	}
	voterRec, err := s.reputation.CheckActive(ctx, voter)
	if err != nil {
		return feed.Round{}, err
	}
	if _, err := s.rounds.GetVote(ctx, roundID, voter); err == nil {
		return feed.Round{}, fmt.Errorf("%s in round %s: %w", voter, roundID, feed.ErrDoubleVote)
	}

	now := s.clock.Now()
	if approve {
		r.Approvals++
	} else {
		r.Rejects++
	}
	vote := feed.Vote{RoundID: roundID, Voter: voter, Approve: approve, CastAt: now}

	voterRec.LastActiveAt = now
	voterRec.UpdatedAt = now
	if err := s.feeders.PutFeeder(ctx, voterRec); err != nil {
		return feed.Round{}, err
	}
	metrics.RecordVote(approve)

	threshold := feed.MajorityThreshold(o.QuorumSize)
	switch {
	case r.Approvals >= threshold:
		if err := s.rounds.RecordVote(ctx, r, vote); err != nil {
			return feed.Round{}, err
		}
		return s.resolve(ctx, r, o, feed.OutcomeApproved, nil)
	case r.Rejects >= threshold:
		if err := s.rounds.RecordVote(ctx, r, vote); err != nil {
			return feed.Round{}, err
		}
		penalized, err := s.penalizeProposer(ctx, r.Proposer, &o)
		if err != nil {
			return feed.Round{}, err
		}
		return s.resolve(ctx, r, o, feed.OutcomeRejected, penalized)
	default:
		if err := s.rounds.RecordVote(ctx, r, vote); err != nil {
			return feed.Round{}, err
		}
		return r, nil
	}
}

// OpenRound returns the pending round for a feed.
func (s *Service) OpenRound(ctx context.Context, oracleID string) (feed.Round, error) {
	return s.rounds.GetOpenRound(ctx, oracleID)
}

// GetRound fetches a round by identifier.
func (s *Service) GetRound(ctx context.Context, roundID string) (feed.Round, error) {
	return s.rounds.GetRound(ctx, roundID)
}

// ListRounds returns the round history for a feed.
func (s *Service) ListRounds(ctx context.Context, oracleID string) ([]feed.Round, error) {
	return s.rounds.ListRounds(ctx, oracleID)
}

// ListVotes returns the ballots of a round.
func (s *Service) ListVotes(ctx context.Context, roundID string) ([]feed.Vote, error) {
	return s.rounds.ListVotes(ctx, roundID)
}

func (s *Service) resolve(ctx context.Context, r feed.Round, o feed.Oracle, outcome feed.Outcome, penalized *feeder.Feeder) (feed.Round, error) {
	now := s.clock.Now()
	r.Outcome = outcome
	r.ResolvedAt = now
	if outcome == feed.OutcomeApproved {
		o.Price = r.ProposedPrice
		o.LastUpdated = now
		o.UpdatedAt = now
	}

	if err := s.rounds.ResolveRound(ctx, r, o, penalized); err != nil {
		return feed.Round{}, err
	}

	metrics.RecordRoundResolved(string(outcome))
	s.log.WithField("oracle_id", o.ID).
		WithField("round_id", r.ID).
		WithField("outcome", string(outcome)).
		WithField("approvals", r.Approvals).
		WithField("rejects", r.Rejects).
		Info("round resolved")
	return r, nil
}

// penalizeProposer issues the rejected-round yellow card. When the card
// pushes the proposer past the expulsion threshold the feed's quorum
// shrinks by one; the caller persists both records in the resolution write.
func (s *Service) penalizeProposer(ctx context.Context, proposer string, o *feed.Oracle) (*feeder.Feeder, error) {
	f, err := s.feeders.GetFeeder(ctx, proposer)
	if err != nil {
		return nil, err
	}
	wasExpelled := f.Expelled(s.params.ExpulsionThreshold)
	now := s.clock.Now()
	f.YellowCards++
	f.UpdatedAt = now
	s.log.WithField("address", proposer).
		WithField("yellow_cards", f.YellowCards).
		Warn("proposer penalized for rejected round")

	if !wasExpelled && f.Expelled(s.params.ExpulsionThreshold) && o.QuorumSize > 1 {
		o.QuorumSize--
		o.UpdatedAt = now
		s.log.WithField("address", proposer).
			WithField("oracle_id", o.ID).
			WithField("quorum_size", o.QuorumSize).
			Warn("proposer expelled, quorum shrunk")
	}
	return &f, nil
}
