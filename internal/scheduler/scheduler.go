// Package scheduler runs the periodic publish tick.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"promptika-bot/internal/pipeline"

	"github.com/getsentry/sentry-go"
)

// Scheduler triggers a publish tick at a fixed interval.
type Scheduler struct {
	pipeline *pipeline.Pipeline
	interval time.Duration
}

// New creates a Scheduler. The interval must be positive.
func New(pl *pipeline.Pipeline, interval time.Duration) (*Scheduler, error) {
	if pl == nil {
		return nil, fmt.Errorf("scheduler: pipeline is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	return &Scheduler{pipeline: pl, interval: interval}, nil
}

// Run blocks until the context is cancelled, running one publish tick per
// interval. A failed tick is reported and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler] Publishing every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] Stopped")
			return
		case <-ticker.C:
			published, err := s.pipeline.PublishTick(ctx)
			if err != nil {
				log.Printf("[Scheduler] Publish tick failed: %v", err)
				sentry.CaptureException(err)
				continue
			}
			if published > 0 {
				log.Printf("[Scheduler] Published %d draft(s)", published)
			}
		}
	}
}
