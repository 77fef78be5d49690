package registry

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Sweeper periodically removes normal fillers that have gone silent past
// the inactivity window. Unlike MarkInactive there is no reporter and no
// reward; the sweep is housekeeping.
type Sweeper struct {
	service  *Service
	schedule string
	cron     *cron.Cron
	log      *logger.Logger
}

// NewSweeper creates a sweeper on the given cron schedule.
func NewSweeper(service *Service, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("registry-sweeper")
	}
	return &Sweeper{service: service, schedule: schedule, log: log}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "registry-sweeper" }

// Start schedules the sweep.
func (s *Sweeper) Start(context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.WithField("schedule", s.schedule).Info("inactivity sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Sweep walks every feed and drops normal fillers whose feeder record has
// been inactive past the window. Seed fillers are never swept.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.service.breaker.Paused() {
		return
	}

	oracles, err := s.service.oracles.ListOracles(ctx)
	if err != nil {
		s.log.WithError(err).Error("sweep: list oracles")
		return
	}

	now := s.service.clock.Now()
	for _, o := range oracles {
		fillers, err := s.service.oracles.ListFillers(ctx, o.ID)
		if err != nil {
			s.log.WithError(err).WithField("oracle_id", o.ID).Error("sweep: list fillers")
			continue
		}
		for _, f := range fillers {
			if f.Role == feed.RoleSeed || o.QuorumSize <= 1 {
				continue
			}
			rec, err := s.service.feeders.GetFeeder(ctx, f.Address)
			if err != nil {
				continue
			}
			if now.Before(rec.LastActiveAt.Add(s.service.params.InactivityWindow)) {
				continue
			}

			o.QuorumSize--
			o.UpdatedAt = now
			if err := s.service.oracles.RemoveFiller(ctx, o, f.Address); err != nil {
				o.QuorumSize++
				s.log.WithError(err).
					WithField("oracle_id", o.ID).
					WithField("address", f.Address).
					Error("sweep: remove filler")
				continue
			}
			s.log.WithField("oracle_id", o.ID).
				WithField("address", f.Address).
				WithField("quorum_size", o.QuorumSize).
				Info("swept inactive filler")
		}
	}
}
