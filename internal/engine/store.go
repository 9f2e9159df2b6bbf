// Package engine contains the provider-agnostic sync pipeline: the store
// contract, the deduplicating thread reconciler, the per-channel sync
// orchestrator, and the periodic scheduler.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// ErrChannelNotFound is returned when a requested channel cannot be found.
var ErrChannelNotFound = errors.New("channel not found")

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// ErrNoPendingJobs is returned by ClaimNextJob when nothing is claimable.
var ErrNoPendingJobs = errors.New("no pending jobs")

// OrdinalAssignment pairs a message with its recomputed position in a thread.
type OrdinalAssignment struct {
	MessageID     string
	MessageNumber int
}

// Store is the persistence contract the engine coordinates through. All
// cross-worker coordination happens via these state transitions
// (claim-by-update), never in-memory locks. The production implementation
// lives in internal/db; tests use the in-memory store from internal/testutil.
type Store interface {
	// Channels
	CreateChannel(ctx context.Context, channel *models.Channel) error
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	ListChannels(ctx context.Context, userID string) ([]*models.Channel, error)
	ListDueChannels(ctx context.Context, now time.Time) ([]*models.Channel, error)
	UpdateChannel(ctx context.Context, channel *models.Channel) error
	// ClaimChannelSync atomically moves the channel from idle (or error) to
	// syncing. It reports false when another run already holds the channel;
	// overlapping triggers coalesce into a no-op.
	ClaimChannelSync(ctx context.Context, channelID string) (bool, error)

	// Sync logs
	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	UpdateSyncLog(ctx context.Context, log *models.SyncLog) error

	// Threads and messages
	GetThreadByProviderID(ctx context.Context, channelID, providerThreadID string) (*models.Thread, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	CreateThread(ctx context.Context, thread *models.Thread) error
	UpdateThreadAggregates(ctx context.Context, thread *models.Thread) error
	ListThreads(ctx context.Context, channelID string, limit, offset int) ([]*models.Thread, error)
	ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error)
	UpdateMessageOrdinals(ctx context.Context, threadID string, assignments []OrdinalAssignment) error

	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageByProviderID(ctx context.Context, channelID, providerMessageID string) (*models.Message, error)
	InsertMessage(ctx context.Context, msg *models.Message, attachments []models.Attachment, header *models.Header) error
	UpdateMessage(ctx context.Context, msg *models.Message) error

	// AI processing queue
	EnqueueJob(ctx context.Context, job *models.ProcessingJob) error
	// ClaimNextJob atomically claims the oldest due pending job
	// (pending -> processing). Returns ErrNoPendingJobs when none is due.
	ClaimNextJob(ctx context.Context, now time.Time) (*models.ProcessingJob, error)
	UpdateJob(ctx context.Context, job *models.ProcessingJob) error
	// ReapOrphanJobs returns processing jobs started before the deadline back
	// to pending and reports how many were recovered.
	ReapOrphanJobs(ctx context.Context, startedBefore time.Time) (int, error)

	// AI result storage
	SetMessageAnalysis(ctx context.Context, messageID string, analysis json.RawMessage, usage models.AnalysisUsage) error
	SetMessageAIStatus(ctx context.Context, messageID string, status models.AIStatus, aiError string) error
	SetMessagePrimaryAction(ctx context.Context, messageID, actionType, color string) error
	SetThreadAnalysis(ctx context.Context, threadID string, analysis json.RawMessage, status models.AIStatus) error
}
