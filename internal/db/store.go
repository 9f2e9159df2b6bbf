package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// Store adapts the package-level query functions to the engine.Store
// interface over a shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ engine.Store = (*Store)(nil)

// NewStore wraps a pool as an engine.Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers that need queries outside the
// engine contract, such as the HTTP handlers.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) CreateChannel(ctx context.Context, channel *models.Channel) error {
	return CreateChannel(ctx, s.pool, channel)
}

func (s *Store) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	return GetChannel(ctx, s.pool, id)
}

func (s *Store) ListChannels(ctx context.Context, userID string) ([]*models.Channel, error) {
	return ListChannels(ctx, s.pool, userID)
}

func (s *Store) ListDueChannels(ctx context.Context, now time.Time) ([]*models.Channel, error) {
	return ListDueChannels(ctx, s.pool, now)
}

func (s *Store) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	return UpdateChannel(ctx, s.pool, channel)
}

func (s *Store) ClaimChannelSync(ctx context.Context, channelID string) (bool, error) {
	return ClaimChannelSync(ctx, s.pool, channelID)
}

func (s *Store) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	return CreateSyncLog(ctx, s.pool, log)
}

func (s *Store) UpdateSyncLog(ctx context.Context, log *models.SyncLog) error {
	return UpdateSyncLog(ctx, s.pool, log)
}

func (s *Store) GetThreadByProviderID(ctx context.Context, channelID, providerThreadID string) (*models.Thread, error) {
	return GetThreadByProviderID(ctx, s.pool, channelID, providerThreadID)
}

func (s *Store) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	return GetThread(ctx, s.pool, id)
}

func (s *Store) CreateThread(ctx context.Context, thread *models.Thread) error {
	return CreateThread(ctx, s.pool, thread)
}

func (s *Store) UpdateThreadAggregates(ctx context.Context, thread *models.Thread) error {
	return UpdateThreadAggregates(ctx, s.pool, thread)
}

func (s *Store) ListThreads(ctx context.Context, channelID string, limit, offset int) ([]*models.Thread, error) {
	return ListThreads(ctx, s.pool, channelID, limit, offset)
}

func (s *Store) ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	return ListThreadMessages(ctx, s.pool, threadID)
}

func (s *Store) UpdateMessageOrdinals(ctx context.Context, threadID string, assignments []engine.OrdinalAssignment) error {
	return UpdateMessageOrdinals(ctx, s.pool, threadID, assignments)
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return GetMessage(ctx, s.pool, id)
}

func (s *Store) GetMessageByProviderID(ctx context.Context, channelID, providerMessageID string) (*models.Message, error) {
	return GetMessageByProviderID(ctx, s.pool, channelID, providerMessageID)
}

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message, attachments []models.Attachment, header *models.Header) error {
	return InsertMessage(ctx, s.pool, msg, attachments, header)
}

func (s *Store) UpdateMessage(ctx context.Context, msg *models.Message) error {
	return UpdateMessage(ctx, s.pool, msg)
}

func (s *Store) EnqueueJob(ctx context.Context, job *models.ProcessingJob) error {
	return EnqueueJob(ctx, s.pool, job)
}

func (s *Store) ClaimNextJob(ctx context.Context, now time.Time) (*models.ProcessingJob, error) {
	return ClaimNextJob(ctx, s.pool, now)
}

func (s *Store) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	return UpdateJob(ctx, s.pool, job)
}

func (s *Store) ReapOrphanJobs(ctx context.Context, startedBefore time.Time) (int, error) {
	return ReapOrphanJobs(ctx, s.pool, startedBefore)
}

func (s *Store) SetMessageAnalysis(ctx context.Context, messageID string, analysis json.RawMessage, usage models.AnalysisUsage) error {
	return SetMessageAnalysis(ctx, s.pool, messageID, analysis, usage)
}

func (s *Store) SetMessageAIStatus(ctx context.Context, messageID string, status models.AIStatus, aiError string) error {
	return SetMessageAIStatus(ctx, s.pool, messageID, status, aiError)
}

func (s *Store) SetMessagePrimaryAction(ctx context.Context, messageID, actionType, color string) error {
	return SetMessagePrimaryAction(ctx, s.pool, messageID, actionType, color)
}

func (s *Store) SetThreadAnalysis(ctx context.Context, threadID string, analysis json.RawMessage, status models.AIStatus) error {
	return SetThreadAnalysis(ctx, s.pool, threadID, analysis, status)
}
