package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler periodically triggers sync runs for channels that are due.
// Channels already syncing are coalesced by the orchestrator's claim, so an
// overlapping tick is harmless.
type Scheduler struct {
	store        Store
	orchestrator *Orchestrator
	tick         time.Duration
	log          zerolog.Logger
}

// NewScheduler creates a scheduler that checks for due channels every tick.
func NewScheduler(store Store, orchestrator *Orchestrator, tick time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{store: store, orchestrator: orchestrator, tick: tick, log: log}
}

// Run blocks until the context is cancelled, triggering due channels on every
// tick. Individual sync failures are logged and retried on their own backoff
// schedule; they never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	channels, err := s.store.ListDueChannels(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list due channels")
		return
	}

	var wg sync.WaitGroup
	for _, channel := range channels {
		wg.Add(1)
		go func(channelID string) {
			defer wg.Done()
			if err := s.orchestrator.SyncChannel(ctx, channelID); err != nil {
				s.log.Warn().Err(err).Str("channel_id", channelID).Msg("scheduled sync failed")
			}
		}(channel.ID)
	}
	wg.Wait()
}
