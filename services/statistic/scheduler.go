package statistic

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service *Service
	now     func() time.Time
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{service: svc, now: time.Now}
}

// StartScheduler runs the daily rebuild loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started statistic rebuild scheduler")

	for {
		now := s.now().UTC()
		next := nextRunTime(now, 1, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// runDaily rebuilds the month of the day that just ended, so the last day of a
// month is folded into that month.
func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	period := Period(s.now().UTC().Add(-2 * time.Hour))

	zap.L().Info("[Scheduler] enqueue statistic rebuilds", zap.String("period", period))

	n, err := s.service.EnqueueRebuildAll(ctx, period)
	if err != nil {
		zap.L().Error("[Scheduler] failed enqueue statistic rebuilds", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished enqueue statistic rebuilds",
		zap.Int("companies", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the next occurrence of hour:minute after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
