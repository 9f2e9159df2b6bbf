package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kukicivan/ai-hub-sub002/internal/action"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// WorkerPool runs the AI processing queue: a pool of workers claiming jobs
// via the atomic pending -> processing transition, plus a reaper that returns
// orphaned processing jobs back to pending. Per-message AI state reaches
// exactly one terminal value per content version.
type WorkerPool struct {
	store       engine.Store
	analyzer    Analyzer
	workers     int
	maxAttempts int
	tokenBudget int
	backoffBase time.Duration
	reapTimeout time.Duration
	pollEvery   time.Duration
	goals       GoalSource
	log         zerolog.Logger
}

// GoalSource resolves the user goals attached to a channel, passed to the
// analyzer alongside message content.
type GoalSource func(ctx context.Context, channelID string) []string

// WorkerPoolOptions configures a worker pool.
type WorkerPoolOptions struct {
	Workers     int
	MaxAttempts int
	TokenBudget int
	BackoffBase time.Duration
	ReapTimeout time.Duration
	PollEvery   time.Duration
	Goals       GoalSource
}

// NewWorkerPool creates a worker pool over the store and analyzer.
func NewWorkerPool(store engine.Store, analyzer Analyzer, opts WorkerPoolOptions, log zerolog.Logger) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = 2 * time.Second
	}
	if opts.ReapTimeout <= 0 {
		opts.ReapTimeout = 10 * time.Minute
	}
	return &WorkerPool{
		store:       store,
		analyzer:    analyzer,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		tokenBudget: opts.TokenBudget,
		backoffBase: opts.BackoffBase,
		reapTimeout: opts.ReapTimeout,
		pollEvery:   opts.PollEvery,
		goals:       opts.Goals,
		log:         log,
	}
}

// Run blocks until the context is cancelled, running the workers and the
// reaper.
func (p *WorkerPool) Run(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.workLoop(ctx, i)
	}
	p.reapLoop(ctx)
}

func (p *WorkerPool) workLoop(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.ClaimNextJob(ctx, time.Now().UTC())
		if err != nil {
			if err != engine.ErrNoPendingJobs {
				log.Error().Err(err).Msg("failed to claim job")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollEvery):
			}
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("job processing failed")
		}
	}
}

func (p *WorkerPool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.reapTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := p.store.ReapOrphanJobs(ctx, time.Now().UTC().Add(-p.reapTimeout))
			if err != nil {
				p.log.Error().Err(err).Msg("failed to reap orphaned jobs")
			} else if reaped > 0 {
				p.log.Info().Int("count", reaped).Msg("returned orphaned jobs to pending")
			}
		}
	}
}

// Process runs one claimed job to an outcome: completed, failed (with
// re-enqueue while attempts remain), or skipped when the token estimate
// exceeds the budget. The budget check happens before any analyzer call.
func (p *WorkerPool) Process(ctx context.Context, job *models.ProcessingJob) error {
	switch job.Type {
	case models.JobTypeMessageAnalysis:
		return p.processMessage(ctx, job)
	case models.JobTypeThreadAnalysis:
		return p.processThread(ctx, job)
	default:
		return p.finishJob(ctx, job, models.AIStatusFailed, fmt.Sprintf("unknown job type %q", job.Type))
	}
}

func (p *WorkerPool) processMessage(ctx context.Context, job *models.ProcessingJob) error {
	msg, err := p.store.GetMessage(ctx, job.MessageID)
	if err != nil {
		return p.finishJob(ctx, job, models.AIStatusFailed, fmt.Sprintf("message lookup failed: %v", err))
	}

	content := analysisContent(msg)

	// Over-budget messages move straight to skipped without ever entering the
	// processing state. The analyzer is never called.
	if p.tokenBudget > 0 && EstimateTokens(content) > p.tokenBudget {
		if err := p.store.SetMessageAIStatus(ctx, msg.ID, models.AIStatusSkipped, ""); err != nil {
			return fmt.Errorf("failed to mark message skipped: %w", err)
		}
		p.log.Info().Str("message_id", msg.ID).Int("estimate", EstimateTokens(content)).Msg("analysis skipped, over token budget")
		return p.finishJob(ctx, job, models.AIStatusSkipped, "")
	}

	if err := p.store.SetMessageAIStatus(ctx, msg.ID, models.AIStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark message processing: %w", err)
	}

	var goals []string
	if p.goals != nil {
		goals = p.goals(ctx, msg.ChannelID)
	}
	result, usage, err := p.analyzer.Analyze(ctx, content, goals)
	if err != nil {
		return p.retryOrFail(ctx, job, msg.ID, err)
	}

	analysisJSON, err := json.Marshal(result)
	if err != nil {
		return p.retryOrFail(ctx, job, msg.ID, fmt.Errorf("failed to encode analysis: %w", err))
	}

	if usage == nil {
		usage = &models.AnalysisUsage{}
	}
	if err := p.store.SetMessageAnalysis(ctx, msg.ID, analysisJSON, *usage); err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}

	primary := action.Extract(result)
	if err := p.store.SetMessagePrimaryAction(ctx, msg.ID, string(primary.Primary.Type), primary.Primary.Color); err != nil {
		return fmt.Errorf("failed to store primary action: %w", err)
	}

	if err := p.store.SetMessageAIStatus(ctx, msg.ID, models.AIStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark message completed: %w", err)
	}

	return p.finishJob(ctx, job, models.AIStatusCompleted, "")
}

// processThread summarizes a whole conversation: the thread's messages are
// concatenated (most recent last) and analyzed as one unit.
func (p *WorkerPool) processThread(ctx context.Context, job *models.ProcessingJob) error {
	messages, err := p.store.ListThreadMessages(ctx, job.ThreadID)
	if err != nil {
		return p.finishJob(ctx, job, models.AIStatusFailed, fmt.Sprintf("thread lookup failed: %v", err))
	}
	if len(messages) == 0 {
		return p.finishJob(ctx, job, models.AIStatusFailed, "thread has no messages")
	}

	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "From: %s\nSent: %s\n%s\n\n---\n\n", msg.Sender.Address, msg.SentAt.Format(time.RFC3339), msg.BodyText)
	}
	content := b.String()

	if p.tokenBudget > 0 && EstimateTokens(content) > p.tokenBudget {
		if err := p.store.SetThreadAnalysis(ctx, job.ThreadID, nil, models.AIStatusSkipped); err != nil {
			return fmt.Errorf("failed to mark thread skipped: %w", err)
		}
		return p.finishJob(ctx, job, models.AIStatusSkipped, "")
	}

	if err := p.store.SetThreadAnalysis(ctx, job.ThreadID, nil, models.AIStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark thread processing: %w", err)
	}

	result, _, err := p.analyzer.Analyze(ctx, content, nil)
	if err != nil {
		return p.retryOrFailThread(ctx, job, err)
	}

	analysisJSON, err := json.Marshal(result)
	if err != nil {
		return p.retryOrFailThread(ctx, job, fmt.Errorf("failed to encode analysis: %w", err))
	}

	if err := p.store.SetThreadAnalysis(ctx, job.ThreadID, analysisJSON, models.AIStatusCompleted); err != nil {
		return fmt.Errorf("failed to store thread analysis: %w", err)
	}

	return p.finishJob(ctx, job, models.AIStatusCompleted, "")
}

// retryOrFail stores the error, and either re-enqueues the job after backoff
// or lets it become terminal when attempts are exhausted. The attempt itself
// was already counted when the job was claimed.
func (p *WorkerPool) retryOrFail(ctx context.Context, job *models.ProcessingJob, messageID string, cause error) error {
	job.LastError = cause.Error()

	if job.Attempts < p.maxAttempts {
		job.Status = models.AIStatusPending
		job.NextAttemptAt = time.Now().UTC().Add(engine.Backoff(p.backoffBase, job.Attempts))
		if err := p.store.SetMessageAIStatus(ctx, messageID, models.AIStatusPending, cause.Error()); err != nil {
			return fmt.Errorf("failed to reset message status: %w", err)
		}
		if err := p.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to re-enqueue job: %w", err)
		}
		p.log.Warn().Err(cause).Str("job_id", job.ID).Int("attempts", job.Attempts).Msg("analysis failed, will retry")
		return nil
	}

	if err := p.store.SetMessageAIStatus(ctx, messageID, models.AIStatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return p.finishJob(ctx, job, models.AIStatusFailed, cause.Error())
}

func (p *WorkerPool) retryOrFailThread(ctx context.Context, job *models.ProcessingJob, cause error) error {
	job.LastError = cause.Error()

	if job.Attempts < p.maxAttempts {
		job.Status = models.AIStatusPending
		job.NextAttemptAt = time.Now().UTC().Add(engine.Backoff(p.backoffBase, job.Attempts))
		if err := p.store.SetThreadAnalysis(ctx, job.ThreadID, nil, models.AIStatusPending); err != nil {
			return fmt.Errorf("failed to reset thread status: %w", err)
		}
		return p.store.UpdateJob(ctx, job)
	}

	if err := p.store.SetThreadAnalysis(ctx, job.ThreadID, nil, models.AIStatusFailed); err != nil {
		return fmt.Errorf("failed to mark thread failed: %w", err)
	}
	return p.finishJob(ctx, job, models.AIStatusFailed, cause.Error())
}

func (p *WorkerPool) finishJob(ctx context.Context, job *models.ProcessingJob, status models.AIStatus, lastError string) error {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	if lastError != "" {
		job.LastError = lastError
	}
	if err := p.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// analysisContent builds the text handed to the analyzer: subject plus the
// plain-text body, falling back to the snippet.
func analysisContent(msg *models.Message) string {
	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	if msg.Metadata.Subject == "" {
		return body
	}
	return fmt.Sprintf("Subject: %s\n\n%s", msg.Metadata.Subject, body)
}
