// services/scheduler.go
package services

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartConfigSweeper evicts long-expired scope configs from the cache on a
// fixed interval. The caller owns the returned scheduler and shuts it down.
func StartConfigSweeper(cache *ScopeConfigCache, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if removed := cache.Sweep(); removed > 0 {
				logger.Info("[Scheduler] swept scope configs", "removed", removed)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
