package jobs

import (
	"context"
	"log/slog"
	"time"

	"luggo/internal/domain"
	"luggo/internal/metrics"
)

// Expirer moves overdue subscriptions to expired.
type Expirer interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error)
}

// Expiry sweeps subscriptions once at start and then every Interval.
type Expiry struct {
	Expirer  Expirer
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

func (j Expiry) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j Expiry) Run(ctx context.Context) error {
	interval := j.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	j.logger().Info("subscription expiry job started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		j.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one expiry pass and returns how many subscriptions expired.
func (j Expiry) Sweep(ctx context.Context) int {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	expired, err := j.Expirer.ExpireSubscriptions(ctx, now())
	if err != nil {
		if ctx.Err() == nil {
			j.logger().Error("subscription expiry failed", "error", err)
		}
		return 0
	}
	metrics.SubscriptionsExpired.Add(float64(len(expired)))
	return len(expired)
}
