package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kukicivan/ai-hub-sub002/internal/adapter"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
	"github.com/kukicivan/ai-hub-sub002/internal/normalize"
)

// AdapterProvider builds a connected-ready adapter for a channel. The
// production provider decrypts the channel config and consults the adapter
// registry; tests substitute scripted fakes.
type AdapterProvider func(ctx context.Context, channel *models.Channel) (adapter.Adapter, error)

// Orchestrator drives one sync cycle per channel: claim the channel, fetch
// via the adapter, push results through normalize -> reconcile, enqueue AI
// jobs for new or changed content, update the cursor, and record a sync-log
// summary.
type Orchestrator struct {
	store       Store
	adapters    AdapterProvider
	reconciler  *Reconciler
	maxAttempts int
	backoffBase time.Duration
	interval    time.Duration
	log         zerolog.Logger
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(store Store, adapters AdapterProvider, maxAttempts int, backoffBase, interval time.Duration, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		adapters:    adapters,
		reconciler:  NewReconciler(store),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		interval:    interval,
		log:         log,
	}
}

// SyncChannel runs one sync cycle for the channel. An overlapping trigger for
// a channel that is already syncing is coalesced into a no-op; the in-flight
// run's successor will pick up anything it misses.
func (o *Orchestrator) SyncChannel(ctx context.Context, channelID string) error {
	channel, err := o.store.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}

	if !channel.Active {
		o.log.Debug().Str("channel_id", channelID).Msg("channel inactive, skipping sync")
		return nil
	}

	claimed, err := o.store.ClaimChannelSync(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to claim channel: %w", err)
	}
	if !claimed {
		o.log.Debug().Str("channel_id", channelID).Msg("sync already in flight, coalescing")
		return nil
	}
	channel.SyncState = models.SyncStateSyncing

	syncLog := &models.SyncLog{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Status:    models.SyncLogRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.CreateSyncLog(ctx, syncLog); err != nil {
		o.releaseChannel(ctx, channel, models.SyncStateError, "", false)
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	runErr := o.run(ctx, channel, syncLog)

	now := time.Now().UTC()
	if syncLog.CompletedAt == nil {
		syncLog.CompletedAt = &now
	}
	if err := o.store.UpdateSyncLog(ctx, syncLog); err != nil {
		o.log.Error().Err(err).Str("sync_log_id", syncLog.ID).Msg("failed to finalize sync log")
	}

	return runErr
}

func (o *Orchestrator) run(ctx context.Context, channel *models.Channel, syncLog *models.SyncLog) error {
	log := o.log.With().Str("channel_id", channel.ID).Str("sync_log_id", syncLog.ID).Logger()

	adp, err := o.adapters(ctx, channel)
	if err != nil {
		return o.failRun(ctx, channel, syncLog, err, log)
	}

	if err := adp.Connect(ctx); err != nil {
		return o.failRun(ctx, channel, syncLog, err, log)
	}
	defer func() {
		if err := adp.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("adapter disconnect failed")
		}
	}()

	messages, newCursor, usedHistory, err := o.fetch(ctx, channel, adp, log)
	if err != nil {
		return o.failRun(ctx, channel, syncLog, err, log)
	}

	syncLog.MessagesFetched = len(messages)

	for i := range messages {
		raw := messages[i]
		normalized, err := normalize.Normalize(channel.Type, raw)
		if err != nil {
			syncLog.MessagesFailed++
			syncLog.Errors = append(syncLog.Errors, err.Error())
			log.Warn().Err(err).Str("provider_message_id", raw.ProviderMessageID).Msg("skipping malformed message")
			continue
		}

		result, err := o.reconciler.Reconcile(ctx, channel.ID, normalized)
		if err != nil {
			syncLog.MessagesFailed++
			syncLog.Errors = append(syncLog.Errors, err.Error())
			log.Warn().Err(err).Str("provider_message_id", raw.ProviderMessageID).Msg("reconcile failed")
			continue
		}

		syncLog.MessagesProcessed++

		// Only content changes re-trigger analysis; a flag-only update is a
		// no-op for the AI queue.
		if result.ContentChanged {
			if err := o.enqueueAnalysis(ctx, result.Message); err != nil {
				log.Warn().Err(err).Str("message_id", result.Message.ID).Msg("failed to enqueue analysis job")
			}
		}
	}

	// A full windowed pass can seed a fresh cursor when the adapter knows its
	// current change-log position.
	if !usedHistory && newCursor == "" {
		if bootstrapper, ok := adp.(adapter.CursorBootstrapper); ok {
			if cursor, err := bootstrapper.CurrentCursor(ctx); err == nil {
				newCursor = cursor
			} else {
				log.Warn().Err(err).Msg("failed to bootstrap cursor")
			}
		}
	}

	now := time.Now().UTC()
	channel.SyncCursor = newCursor
	channel.LastSyncAt = &now
	channel.FailureCount = 0
	channel.HealthStatus = models.HealthHealthy
	next := now.Add(o.interval)
	channel.NextSyncAt = &next
	o.releaseChannel(ctx, channel, models.SyncStateIdle, newCursor, true)

	syncLog.Status = models.SyncLogCompleted
	log.Info().
		Int("fetched", syncLog.MessagesFetched).
		Int("processed", syncLog.MessagesProcessed).
		Int("failed", syncLog.MessagesFailed).
		Msg("sync completed")

	return nil
}

// fetch pulls messages incrementally when a cursor exists, falling back to a
// windowed pull when the provider reports the cursor expired. The stored
// cursor is left untouched until a new one is confirmed by a successful run.
func (o *Orchestrator) fetch(ctx context.Context, channel *models.Channel, adp adapter.Adapter, log zerolog.Logger) (messages []models.RawMessage, newCursor string, usedHistory bool, err error) {
	if channel.SyncCursor != "" {
		page, historyErr := adp.ReceiveMessagesViaHistory(ctx, channel.SyncCursor)
		if historyErr == nil {
			return page.Messages, page.NextCursor, true, nil
		}
		if !adapter.IsCursorExpired(historyErr) {
			return nil, "", false, historyErr
		}
		log.Info().Str("cursor", channel.SyncCursor).Msg("cursor expired, falling back to windowed sync")
	}

	messages, err = adp.ReceiveMessages(ctx, channel.LastSyncAt, 0)
	if err != nil {
		return nil, "", false, err
	}
	return messages, "", false, nil
}

func (o *Orchestrator) enqueueAnalysis(ctx context.Context, msg *models.Message) error {
	if err := o.store.SetMessageAIStatus(ctx, msg.ID, models.AIStatusPending, ""); err != nil {
		return err
	}
	job := &models.ProcessingJob{
		ID:            uuid.NewString(),
		Type:          models.JobTypeMessageAnalysis,
		MessageID:     msg.ID,
		ThreadID:      msg.ThreadID,
		Status:        models.AIStatusPending,
		NextAttemptAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	return o.store.EnqueueJob(ctx, job)
}

// failRun records the failure, classifies it, and schedules (or suppresses)
// the retry. Auth and config failures never retry automatically; they only
// surface as a channel health change. Everything already reconciled in this
// run stays committed.
func (o *Orchestrator) failRun(ctx context.Context, channel *models.Channel, syncLog *models.SyncLog, runErr error, log zerolog.Logger) error {
	syncLog.Status = models.SyncLogFailed
	syncLog.Errors = append(syncLog.Errors, runErr.Error())

	now := time.Now().UTC()
	channel.FailureCount++

	switch {
	case adapter.IsAuthError(runErr) || adapter.IsConfigError(runErr):
		channel.HealthStatus = models.HealthUnhealthy
		channel.NextSyncAt = nil
		log.Error().Err(runErr).Msg("sync failed, user action required")
	default:
		channel.HealthStatus = models.HealthDegraded
		next := now.Add(Backoff(o.backoffBase, channel.FailureCount))
		channel.NextSyncAt = &next
		log.Warn().Err(runErr).Int("failure_count", channel.FailureCount).Time("next_sync_at", next).Msg("sync failed, retry scheduled")
	}

	o.releaseChannel(ctx, channel, models.SyncStateError, channel.SyncCursor, false)
	return runErr
}

// releaseChannel writes the channel back with the final sync state. On
// failure the cursor keeps its last confirmed value.
func (o *Orchestrator) releaseChannel(ctx context.Context, channel *models.Channel, state models.SyncState, cursor string, success bool) {
	channel.SyncState = state
	if success {
		channel.SyncCursor = cursor
	}
	if err := o.store.UpdateChannel(ctx, channel); err != nil {
		o.log.Error().Err(err).Str("channel_id", channel.ID).Msg("failed to release channel")
	}
}

// Backoff is the exponential retry delay for the given attempt count (1-based),
// capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}
	if delay > time.Hour {
		return time.Hour
	}
	return delay
}
