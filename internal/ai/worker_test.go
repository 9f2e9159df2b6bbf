package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kukicivan/ai-hub-sub002/internal/ai"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
	"github.com/kukicivan/ai-hub-sub002/internal/testutil"
)

// fakeAnalyzer counts calls and returns a scripted result or error.
type fakeAnalyzer struct {
	calls  int
	result *models.AnalysisResult
	usage  *models.AnalysisUsage
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, []string) (*models.AnalysisResult, *models.AnalysisUsage, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.result, f.usage, nil
}

func seedMessage(t *testing.T, store *testutil.MemoryStore, body string) *models.Message {
	t.Helper()
	ctx := context.Background()

	thread := &models.Thread{ChannelID: "channel-1", ProviderThreadID: "t1", AIStatus: models.AIStatusPending}
	require.NoError(t, store.CreateThread(ctx, thread))

	msg := &models.Message{
		ChannelID:         "channel-1",
		ThreadID:          thread.ID,
		ProviderMessageID: "m1",
		MessageNumber:     1,
		SentAt:            time.Now().UTC(),
		Sender:            models.Address{Address: "alice@example.com"},
		BodyText:          body,
		Metadata:          models.MessageMetadata{Subject: "Hello"},
		Status:            models.MessageStatusNew,
		AIStatus:          models.AIStatusPending,
	}
	require.NoError(t, store.InsertMessage(ctx, msg, nil, nil))
	return msg
}

func enqueue(t *testing.T, store *testutil.MemoryStore, msg *models.Message) *models.ProcessingJob {
	t.Helper()
	job := &models.ProcessingJob{
		Type:          models.JobTypeMessageAnalysis,
		MessageID:     msg.ID,
		ThreadID:      msg.ThreadID,
		Status:        models.AIStatusPending,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}
	require.NoError(t, store.EnqueueJob(context.Background(), job))
	return job
}

func newPool(store *testutil.MemoryStore, analyzer ai.Analyzer, opts ai.WorkerPoolOptions) *ai.WorkerPool {
	return ai.NewWorkerPool(store, analyzer, opts, zerolog.Nop())
}

func claimAndProcess(t *testing.T, store *testutil.MemoryStore, pool *ai.WorkerPool) *models.ProcessingJob {
	t.Helper()
	ctx := context.Background()
	job, err := store.ClaimNextJob(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, pool.Process(ctx, job))
	return job
}

func TestProcessMessageCompletes(t *testing.T) {
	store := testutil.NewMemoryStore()
	msg := seedMessage(t, store, "please review the report")
	enqueue(t, store, msg)

	analyzer := &fakeAnalyzer{
		result: &models.AnalysisResult{
			Summary: "Review request",
			ActionSteps: []models.ActionStep{
				{Type: models.ActionTodo, Description: "Review the report"},
			},
		},
		usage: &models.AnalysisUsage{PromptTokens: 200, CompletionTokens: 80, TotalTokens: 280, CostMicroUSD: 90},
	}
	pool := newPool(store, analyzer, ai.WorkerPoolOptions{MaxAttempts: 3, TokenBudget: 8000})

	claimAndProcess(t, store, pool)

	got, err := store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AIStatusCompleted, got.AIStatus)
	assert.Equal(t, 280, got.AITokensUsed)
	assert.Equal(t, int64(90), got.AICostMicroUSD)
	assert.Equal(t, "todo", got.PrimaryActionType)
	assert.Equal(t, "orange", got.PrimaryActionColor)

	var stored models.AnalysisResult
	require.NoError(t, json.Unmarshal(got.Analysis, &stored))
	assert.Equal(t, "Review request", stored.Summary)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.AIStatusCompleted, jobs[0].Status)
	assert.NotNil(t, jobs[0].CompletedAt)
	assert.Equal(t, 1, analyzer.calls)
}

// statusRecorder captures every message AI status write in order.
type statusRecorder struct {
	*testutil.MemoryStore
	transitions []models.AIStatus
}

func (s *statusRecorder) SetMessageAIStatus(ctx context.Context, messageID string, status models.AIStatus, aiError string) error {
	s.transitions = append(s.transitions, status)
	return s.MemoryStore.SetMessageAIStatus(ctx, messageID, status, aiError)
}

func TestProcessMessageOverBudgetSkipsWithoutCalling(t *testing.T) {
	recorder := &statusRecorder{MemoryStore: testutil.NewMemoryStore()}
	msg := seedMessage(t, recorder.MemoryStore, strings.Repeat("very long content ", 5000))
	enqueue(t, recorder.MemoryStore, msg)

	analyzer := &fakeAnalyzer{}
	pool := ai.NewWorkerPool(recorder, analyzer, ai.WorkerPoolOptions{MaxAttempts: 3, TokenBudget: 1000}, zerolog.Nop())

	ctx := context.Background()
	job, err := recorder.ClaimNextJob(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, pool.Process(ctx, job))

	assert.Zero(t, analyzer.calls, "the budget check fires before any analyzer call")

	got, err := recorder.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AIStatusSkipped, got.AIStatus)
	assert.Empty(t, got.AIError, "skipped is an outcome, not an error")
	assert.Equal(t, []models.AIStatus{models.AIStatusSkipped}, recorder.transitions,
		"an over-budget message moves straight to skipped, never through processing")

	jobs := recorder.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.AIStatusSkipped, jobs[0].Status)
}

func TestProcessMessageRetriesThenFails(t *testing.T) {
	store := testutil.NewMemoryStore()
	msg := seedMessage(t, store, "hello")
	enqueue(t, store, msg)

	analyzer := &fakeAnalyzer{err: errors.New("upstream 500")}
	pool := newPool(store, analyzer, ai.WorkerPoolOptions{MaxAttempts: 3, TokenBudget: 8000, BackoffBase: time.Nanosecond})
	ctx := context.Background()

	// Attempts one and two re-enqueue with backoff.
	for i := 0; i < 2; i++ {
		job, err := store.ClaimNextJob(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, pool.Process(ctx, job))

		got, err := store.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AIStatusPending, got.AIStatus)
		assert.Equal(t, "upstream 500", got.AIError)
	}

	// The third attempt exhausts the budget and is terminal.
	job, err := store.ClaimNextJob(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, pool.Process(ctx, job))

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AIStatusFailed, got.AIStatus)
	assert.Equal(t, "upstream 500", got.AIError)
	assert.Equal(t, 3, analyzer.calls)

	_, err = store.ClaimNextJob(ctx, time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, engine.ErrNoPendingJobs, "a terminal job never runs again")
}

func TestProcessThread(t *testing.T) {
	store := testutil.NewMemoryStore()
	msg := seedMessage(t, store, "first message")

	job := &models.ProcessingJob{
		Type:          models.JobTypeThreadAnalysis,
		ThreadID:      msg.ThreadID,
		Status:        models.AIStatusPending,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}
	require.NoError(t, store.EnqueueJob(context.Background(), job))

	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{Summary: "One-message thread"}}
	pool := newPool(store, analyzer, ai.WorkerPoolOptions{MaxAttempts: 3, TokenBudget: 8000})

	claimAndProcess(t, store, pool)

	thread, err := store.GetThread(context.Background(), msg.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, models.AIStatusCompleted, thread.AIStatus)

	var stored models.AnalysisResult
	require.NoError(t, json.Unmarshal(thread.Analysis, &stored))
	assert.Equal(t, "One-message thread", stored.Summary)
}

func TestReaperReturnsOrphans(t *testing.T) {
	store := testutil.NewMemoryStore()
	msg := seedMessage(t, store, "hello")
	enqueue(t, store, msg)
	ctx := context.Background()

	// Claim the job and then pretend the worker died.
	_, err := store.ClaimNextJob(ctx, time.Now().UTC())
	require.NoError(t, err)

	_, err = store.ClaimNextJob(ctx, time.Now().UTC())
	require.ErrorIs(t, err, engine.ErrNoPendingJobs)

	reaped, err := store.ReapOrphanJobs(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	job, err := store.ClaimNextJob(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.AIStatusProcessing, job.Status)
}

func TestEnqueueDeduplicatesPendingJobs(t *testing.T) {
	store := testutil.NewMemoryStore()
	msg := seedMessage(t, store, "hello")

	enqueue(t, store, msg)
	enqueue(t, store, msg)

	assert.Len(t, store.Jobs(), 1, "a pending job for the same message coalesces")
}
