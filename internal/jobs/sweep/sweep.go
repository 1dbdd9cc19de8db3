// Package sweep runs the periodic expiry sweep over pending verifications.
// It is memory hygiene only: expiry is always re-checked on code submission,
// so correctness never depends on this job running.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"ordergate/core/logger"
)

// Expirer removes expired pending verifications and returns how many.
type Expirer interface {
	SweepExpired(ctx context.Context) int
}

// Job periodically invokes the expirer until its context is cancelled.
type Job struct {
	expirer  Expirer
	interval time.Duration
}

// New builds a sweep job; interval <= 0 disables it.
func New(expirer Expirer, interval time.Duration) *Job {
	return &Job{expirer: expirer, interval: interval}
}

// Run blocks, sweeping once per interval, until ctx is done.
func (j *Job) Run(ctx context.Context) {
	if j.expirer == nil || j.interval <= 0 {
		return
	}
	logger.Info(ctx, "jobs.sweep", "start",
		slog.String("status", "ok"),
		slog.Duration("interval", j.interval),
	)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "jobs.sweep", "stop",
				slog.String("status", "ok"),
			)
			return
		case <-ticker.C:
			j.expirer.SweepExpired(ctx)
		}
	}
}
