package service

import (
	"context"
	"errors"
	"time"

	"github.com/medlan/medlan-backend/pkg/lock"
	"github.com/medlan/medlan-backend/pkg/logger"
)

const schedulerLockKey = "scheduler:expiry-scan"

// AlertScheduler runs alert scans periodically across all branches. With a
// locker only one replica runs a given cycle.
type AlertScheduler struct {
	scanner  *AlertScanner
	locker   Locker
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAlertScheduler creates a new alert scheduler. locker may be nil.
func NewAlertScheduler(scanner *AlertScanner, locker Locker, interval time.Duration, log *logger.Logger) *AlertScheduler {
	return &AlertScheduler{
		scanner:  scanner,
		locker:   locker,
		interval: interval,
		logger:   log.WithComponent("alert_scheduler"),
	}
}

// Start starts the scheduler in a background goroutine.
func (s *AlertScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
}

// Run scans once immediately and then on every tick until ctx is done.
func (s *AlertScheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

	s.runScanCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("alert scheduler stopped")
			return
		case <-ticker.C:
			s.runScanCycle(ctx)
		}
	}
}

// Stop stops the scheduler goroutine and waits for the current cycle.
func (s *AlertScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *AlertScheduler) runScanCycle(ctx context.Context) {
	start := time.Now()
	s.logger.Info().Msg("starting alert scan cycle")

	scan := func(ctx context.Context) error {
		return s.scanner.ScanAll(ctx)
	}

	var err error
	if s.locker != nil {
		err = s.locker.Do(ctx, schedulerLockKey, s.interval, scan)
	} else {
		err = scan(ctx)
	}

	switch {
	case errors.Is(err, lock.ErrNotObtained):
		s.logger.Debug().Msg("alert scan cycle running on another instance, skipping")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("alert scan cycle finished with errors")
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("alert scan cycle completed")
}
