package janitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper deletes waiting rooms idle for longer than maxIdle.
type Sweeper interface {
	SweepIdle(maxIdle time.Duration) []string
}

// Run sweeps every interval until ctx is done. A zero maxIdle disables it.
func Run(ctx context.Context, rooms Sweeper, maxIdle, interval time.Duration) {
	if maxIdle <= 0 {
		log.Info("idle room janitor disabled")
		return
	}
	if interval <= 0 || interval > maxIdle {
		interval = maxIdle
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("idle room janitor started, max idle %s, every %s", maxIdle, interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("idle room janitor stopped")
			return
		case <-ticker.C:
			if removed := rooms.SweepIdle(maxIdle); len(removed) > 0 {
				log.Infof("janitor removed %d idle rooms: %v", len(removed), removed)
			}
		}
	}
}
