package services

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSchedule = "@every 5s"
	DefaultSweepBatch    = 100
)

// LifecycleSweeper closes expired auctions on a cron schedule. Only the
// elected leader sweeps; other instances rely on lazy closure.
type LifecycleSweeper struct {
	cron       *cron.Cron
	ledger     *Ledger
	leader     domain.LeaderElection
	instanceID string
	schedule   string
	batch      int
	log        logger.Logger
}

func NewLifecycleSweeper(
	ledger *Ledger,
	leader domain.LeaderElection,
	instanceID string,
	schedule string,
	batch int,
	log logger.Logger,
) *LifecycleSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	return &LifecycleSweeper{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ledger:     ledger,
		leader:     leader,
		instanceID: instanceID,
		schedule:   schedule,
		batch:      batch,
		log:        log,
	}
}

func (s *LifecycleSweeper) Start(ctx context.Context) error {
	s.log.Info("Starting lifecycle sweeper", "schedule", s.schedule, "instance_id", s.instanceID)

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("Sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep and gives up leadership.
func (s *LifecycleSweeper) Stop(ctx context.Context) error {
	s.log.Info("Stopping lifecycle sweeper")
	<-s.cron.Stop().Done()
	return s.leader.ReleaseLeadership(ctx, s.instanceID)
}

// RunOnce sweeps if this instance is or becomes the leader and returns the
// number of auctions it closed.
func (s *LifecycleSweeper) RunOnce(ctx context.Context) (int, error) {
	leading, err := s.ensureLeader(ctx)
	if err != nil || !leading {
		return 0, err
	}

	total := 0
	for {
		n, err := s.ledger.SweepExpired(ctx, s.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		s.log.Info("Sweep closed auctions", "count", total)
	}
	return total, nil
}

func (s *LifecycleSweeper) ensureLeader(ctx context.Context) (bool, error) {
	leading, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		return false, err
	}
	if leading {
		return true, nil
	}
	return s.leader.BecomeLeader(ctx, s.instanceID)
}
