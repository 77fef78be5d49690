// Package registry manages filler membership on feeds: public admission and
// inactivity removal.
package registry

import (
	"context"
	"fmt"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	"github.com/FeederNet/oracle_layer/internal/app/services/reputation"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/internal/app/system"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Service runs the two-phase public admission flow and the inactivity
// removal path. Admission fees go to the treasury address; inactivity
// reports are rewarded from the vault.
type Service struct {
	feeders    storage.FeederStore
	oracles    storage.OracleStore
	admissions storage.AdmissionStore
	reputation *reputation.Service
	token      chain.TokenClient
	guard      *guard.Guard
	breaker    *system.Breaker
	clock      chain.Clock
	params     config.Params
	treasury   string
	log        *logger.Logger
}

// New constructs the registry service.
func New(feeders storage.FeederStore, oracles storage.OracleStore, admissions storage.AdmissionStore, rep *reputation.Service, token chain.TokenClient, g *guard.Guard, breaker *system.Breaker, clock chain.Clock, params config.Params, treasury string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Service{
		feeders:    feeders,
		oracles:    oracles,
		admissions: admissions,
		reputation: rep,
		token:      token,
		guard:      g,
		breaker:    breaker,
		clock:      clock,
		params:     params,
		treasury:   treasury,
		log:        log,
	}
}

// RequestAdmission opens the waiting period for a staked feeder on a public
// feed. The admission fee is charged up front and is not refunded.
//
// Pending requests are capped so a burst of newcomers can never outvote the
// sitting quorum: a request is accepted only while twice the pending count
// stays below the quorum size.
func (s *Service) RequestAdmission(ctx context.Context, oracleID, address string) (feeder.Admission, error) {
	if s.breaker.Paused() {
		return feeder.Admission{}, feed.ErrPaused
	}

	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return feeder.Admission{}, err
	}
	if o.OnlySeeders {
		return feeder.Admission{}, fmt.Errorf("feed %s not open to the public: %w", oracleID, feed.ErrInvalidState)
	}
	if _, err := s.oracles.GetFiller(ctx, oracleID, address); err == nil {
		return feeder.Admission{}, fmt.Errorf("%s already a filler on %s: %w", address, oracleID, feed.ErrInvalidState)
	}
	if _, err := s.admissions.GetAdmission(ctx, oracleID, address); err == nil {
		return feeder.Admission{}, fmt.Errorf("%s already has a pending request on %s: %w", address, oracleID, feed.ErrInvalidState)
	}

	if _, err := s.reputation.CheckActive(ctx, address); err != nil {
		return feeder.Admission{}, err
	}

	pending, err := s.admissions.CountAdmissions(ctx, oracleID)
	if err != nil {
		return feeder.Admission{}, err
	}
	if 2*(pending+1) >= o.QuorumSize {
		return feeder.Admission{}, fmt.Errorf("pending admissions on %s at capacity: %w", oracleID, feed.ErrRateLimited)
	}

	release, err := s.guard.Enter()
	if err != nil {
		return feeder.Admission{}, err
	}
	defer release()

	confirmed, err := s.token.TransferFrom(ctx, address, s.treasury, s.params.AdmissionFee)
	if err != nil {
		return feeder.Admission{}, fmt.Errorf("admission fee transfer: %w", err)
	}
	if !confirmed {
		return feeder.Admission{}, fmt.Errorf("admission fee of %d from %s: %w", s.params.AdmissionFee, address, feed.ErrInsufficientPayment)
	}

	adm := feeder.Admission{OracleID: oracleID, Address: address, RequestedAt: s.clock.Now()}
	if err := s.admissions.CreateAdmission(ctx, adm); err != nil {
		return feeder.Admission{}, err
	}

	s.log.WithField("oracle_id", oracleID).
		WithField("address", address).
		Info("admission requested")
	return adm, nil
}

// CompleteAdmission turns a matured request into a normal filler seat and
// grows the quorum by one.
func (s *Service) CompleteAdmission(ctx context.Context, oracleID, address string) (feed.Filler, error) {
	if s.breaker.Paused() {
		return feed.Filler{}, feed.ErrPaused
	}

	adm, err := s.admissions.GetAdmission(ctx, oracleID, address)
	if err != nil {
		return feed.Filler{}, fmt.Errorf("%s on %s: %w", address, oracleID, feed.ErrNoPendingRequest)
	}

	now := s.clock.Now()
	if readyAt := adm.RequestedAt.Add(s.params.WaitingPeriod); now.Before(readyAt) {
		return feed.Filler{}, fmt.Errorf("admission matures at %s: %w", readyAt.Format("2006-01-02T15:04:05Z"), feed.ErrTooSoon)
	}

	// The feeder must still qualify when the seat is claimed.
	if _, err := s.reputation.CheckActive(ctx, address); err != nil {
		return feed.Filler{}, err
	}

	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return feed.Filler{}, err
	}
	o.QuorumSize++
	o.UpdatedAt = now

	f := feed.Filler{OracleID: oracleID, Address: address, Role: feed.RoleNormal, AddedAt: now}
	if err := s.admissions.CompleteAdmission(ctx, adm, f, o); err != nil {
		return feed.Filler{}, err
	}

	s.log.WithField("oracle_id", oracleID).
		WithField("address", address).
		WithField("quorum_size", o.QuorumSize).
		Info("admission completed")
	return f, nil
}

// MarkInactive removes a filler that has gone silent past the inactivity
// window and rewards the reporter from the vault. The last filler on a feed
// cannot be removed.
func (s *Service) MarkInactive(ctx context.Context, oracleID, reporter, target string) error {
	if s.breaker.Paused() {
		return feed.ErrPaused
	}

	o, err := s.oracles.GetOracle(ctx, oracleID)
	if err != nil {
		return err
	}
	if _, err := s.oracles.GetFiller(ctx, oracleID, reporter); err != nil {
		return fmt.Errorf("reporter %s not a filler on %s: %w", reporter, oracleID, feed.ErrUnauthorized)
	}
	if _, err := s.oracles.GetFiller(ctx, oracleID, target); err != nil {
		return err
	}
	if o.QuorumSize <= 1 {
		return fmt.Errorf("cannot remove last filler on %s: %w", oracleID, feed.ErrInvalidState)
	}

	targetFeeder, err := s.feeders.GetFeeder(ctx, target)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if cutoff := targetFeeder.LastActiveAt.Add(s.params.InactivityWindow); now.Before(cutoff) {
		return fmt.Errorf("%s active until %s: %w", target, cutoff.Format("2006-01-02T15:04:05Z"), feed.ErrTooSoon)
	}

	release, err := s.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	confirmed, err := s.token.Transfer(ctx, reporter, s.params.InactivityReward)
	if err != nil {
		return fmt.Errorf("inactivity reward transfer: %w", err)
	}
	if !confirmed {
		return fmt.Errorf("inactivity reward of %d to %s: %w", s.params.InactivityReward, reporter, feed.ErrTransferFailure)
	}

	o.QuorumSize--
	o.UpdatedAt = now
	if err := s.oracles.RemoveFiller(ctx, o, target); err != nil {
		return err
	}

	s.log.WithField("oracle_id", oracleID).
		WithField("target", target).
		WithField("reporter", reporter).
		WithField("quorum_size", o.QuorumSize).
		Info("inactive filler removed")
	return nil
}
