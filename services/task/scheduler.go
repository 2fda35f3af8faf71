package task

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-engine/pkg/config"
)

type Scheduler struct {
	service *Service
	hour    int
	cancel  context.CancelFunc
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return &Scheduler{service: svc, hour: cfg.Membership.SweepHour}
}

// StartScheduler runs the daily loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started membership expiry scheduler", zap.Int("hour", s.hour))

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			s.runDaily(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Info("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing membership expiry sweep")

	if err := s.service.EnqueueExpirySweep(ctx); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] expiry sweep enqueued", zap.Duration("duration", time.Since(start)))
}

// nextRunTime returns the next occurrence of hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
