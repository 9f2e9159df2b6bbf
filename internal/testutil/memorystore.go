package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// MemoryStore is an in-memory engine.Store for tests. It mirrors the
// transition semantics of the Postgres store, including claim-by-update on
// channels and jobs and pending-job deduplication, behind a single mutex.
type MemoryStore struct {
	mu sync.Mutex

	channels map[string]*models.Channel
	syncLogs map[string]*models.SyncLog
	threads  map[string]*models.Thread
	messages map[string]*models.Message
	jobs     map[string]*models.ProcessingJob

	attachments map[string][]models.Attachment
	headers     map[string]*models.Header
}

var _ engine.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:    make(map[string]*models.Channel),
		syncLogs:    make(map[string]*models.SyncLog),
		threads:     make(map[string]*models.Thread),
		messages:    make(map[string]*models.Message),
		jobs:        make(map[string]*models.ProcessingJob),
		attachments: make(map[string][]models.Attachment),
		headers:     make(map[string]*models.Header),
	}
}

func (s *MemoryStore) CreateChannel(_ context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.channels {
		if existing.UserID == channel.UserID && existing.Type == channel.Type {
			return fmt.Errorf("channel for user %s with type %s already exists", channel.UserID, channel.Type)
		}
	}

	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	channel.CreatedAt = time.Now()
	channel.UpdatedAt = channel.CreatedAt
	cp := *channel
	s.channels[channel.ID] = &cp
	return nil
}

func (s *MemoryStore) GetChannel(_ context.Context, id string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, engine.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) ListChannels(_ context.Context, userID string) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Channel
	for _, ch := range s.channels {
		if ch.UserID == userID {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListDueChannels(_ context.Context, now time.Time) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Channel
	for _, ch := range s.channels {
		if !ch.Active || ch.SyncState == models.SyncStateSyncing {
			continue
		}
		if ch.NextSyncAt != nil && ch.NextSyncAt.After(now) {
			continue
		}
		cp := *ch
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateChannel(_ context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channel.ID]; !ok {
		return engine.ErrChannelNotFound
	}
	channel.UpdatedAt = time.Now()
	cp := *channel
	s.channels[channel.ID] = &cp
	return nil
}

func (s *MemoryStore) ClaimChannelSync(_ context.Context, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return false, engine.ErrChannelNotFound
	}
	if ch.SyncState == models.SyncStateSyncing {
		return false, nil
	}
	ch.SyncState = models.SyncStateSyncing
	ch.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) CreateSyncLog(_ context.Context, log *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	cp := *log
	s.syncLogs[log.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateSyncLog(_ context.Context, log *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.syncLogs[log.ID]; !ok {
		return fmt.Errorf("sync log %s not found", log.ID)
	}
	cp := *log
	s.syncLogs[log.ID] = &cp
	return nil
}

// SyncLogs returns all recorded sync logs, newest first. Test helper.
func (s *MemoryStore) SyncLogs() []*models.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.SyncLog
	for _, l := range s.syncLogs {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (s *MemoryStore) GetThreadByProviderID(_ context.Context, channelID, providerThreadID string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.threads {
		if t.ChannelID == channelID && t.ProviderThreadID == providerThreadID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, engine.ErrThreadNotFound
}

func (s *MemoryStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, engine.ErrThreadNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateThread(_ context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.threads {
		if existing.ChannelID == thread.ChannelID && existing.ProviderThreadID == thread.ProviderThreadID {
			if existing.Subject == "" && thread.Subject != "" {
				existing.Subject = thread.Subject
			}
			thread.ID = existing.ID
			return nil
		}
	}

	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	cp := *thread
	s.threads[thread.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateThreadAggregates(_ context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.threads[thread.ID]
	if !ok {
		return engine.ErrThreadNotFound
	}
	existing.Subject = thread.Subject
	existing.Participants = thread.Participants
	existing.LastMessageAt = thread.LastMessageAt
	existing.MessageCount = thread.MessageCount
	existing.Flags = thread.Flags
	existing.Labels = thread.Labels
	return nil
}

func (s *MemoryStore) ListThreads(_ context.Context, channelID string, limit, offset int) ([]*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.Thread
	for _, t := range s.threads {
		if t.ChannelID == channelID {
			cp := *t
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].LastMessageAt, all[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) ListThreadMessages(_ context.Context, threadID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageNumber != out[j].MessageNumber {
			return out[i].MessageNumber < out[j].MessageNumber
		}
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ProviderMessageID < out[j].ProviderMessageID
	})
	return out, nil
}

func (s *MemoryStore) UpdateMessageOrdinals(_ context.Context, threadID string, assignments []engine.OrdinalAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range assignments {
		m, ok := s.messages[a.MessageID]
		if !ok || m.ThreadID != threadID {
			continue
		}
		m.MessageNumber = a.MessageNumber
	}
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, engine.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetMessageByProviderID(_ context.Context, channelID, providerMessageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ChannelID == channelID && m.ProviderMessageID == providerMessageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, engine.ErrMessageNotFound
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg *models.Message, attachments []models.Attachment, header *models.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ChannelID == msg.ChannelID && m.ProviderMessageID == msg.ProviderMessageID {
			return fmt.Errorf("message %s already exists in channel %s", msg.ProviderMessageID, msg.ChannelID)
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	cp := *msg
	s.messages[msg.ID] = &cp

	if len(attachments) > 0 {
		atts := make([]models.Attachment, len(attachments))
		copy(atts, attachments)
		for i := range atts {
			atts[i].ID = uuid.NewString()
			atts[i].MessageID = msg.ID
		}
		s.attachments[msg.ID] = atts
	}
	if header != nil {
		h := *header
		h.MessageID = msg.ID
		s.headers[msg.ID] = &h
	}
	return nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[msg.ID]
	if !ok {
		return engine.ErrMessageNotFound
	}
	// Body fields fill in only when previously empty, same as the SQL store.
	if existing.BodyText == "" {
		existing.BodyText = msg.BodyText
	}
	if existing.BodyHTML == "" {
		existing.BodyHTML = msg.BodyHTML
	}
	if existing.Snippet == "" {
		existing.Snippet = msg.Snippet
	}
	existing.Reactions = msg.Reactions
	existing.Metadata = msg.Metadata
	existing.Flags = msg.Flags
	existing.Priority = msg.Priority
	existing.Status = msg.Status
	existing.ContentHash = msg.ContentHash
	existing.AIStatus = msg.AIStatus
	existing.AIError = msg.AIError
	return nil
}

func (s *MemoryStore) EnqueueJob(_ context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Status == models.AIStatusPending &&
			existing.Type == job.Type &&
			existing.MessageID == job.MessageID &&
			existing.ThreadID == job.ThreadID {
			if job.NextAttemptAt.Before(existing.NextAttemptAt) {
				existing.NextAttemptAt = job.NextAttemptAt
			}
			job.ID = existing.ID
			return nil
		}
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.AIStatusPending
	job.CreatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) ClaimNextJob(_ context.Context, now time.Time) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *models.ProcessingJob
	for _, j := range s.jobs {
		if j.Status != models.AIStatusPending || j.NextAttemptAt.After(now) {
			continue
		}
		if candidate == nil || j.NextAttemptAt.Before(candidate.NextAttemptAt) {
			candidate = j
		}
	}
	if candidate == nil {
		return nil, engine.ErrNoPendingJobs
	}

	candidate.Status = models.AIStatusProcessing
	candidate.Attempts++
	started := now
	candidate.StartedAt = &started
	cp := *candidate
	return &cp, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) ReapOrphanJobs(_ context.Context, startedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for _, j := range s.jobs {
		if j.Status == models.AIStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			j.Status = models.AIStatusPending
			j.StartedAt = nil
			j.NextAttemptAt = time.Now()
			reaped++
		}
	}
	return reaped, nil
}

func (s *MemoryStore) SetMessageAnalysis(_ context.Context, messageID string, analysis json.RawMessage, usage models.AnalysisUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return engine.ErrMessageNotFound
	}
	m.Analysis = analysis
	m.AITokensUsed = usage.TotalTokens
	m.AICostMicroUSD = usage.CostMicroUSD
	m.AIError = ""
	m.Status = models.MessageStatusProcessed
	return nil
}

func (s *MemoryStore) SetMessageAIStatus(_ context.Context, messageID string, status models.AIStatus, aiError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return engine.ErrMessageNotFound
	}
	m.AIStatus = status
	m.AIError = aiError
	return nil
}

func (s *MemoryStore) SetMessagePrimaryAction(_ context.Context, messageID, actionType, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return engine.ErrMessageNotFound
	}
	m.PrimaryActionType = actionType
	m.PrimaryActionColor = color
	return nil
}

func (s *MemoryStore) SetThreadAnalysis(_ context.Context, threadID string, analysis json.RawMessage, status models.AIStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return engine.ErrThreadNotFound
	}
	if analysis != nil {
		t.Analysis = analysis
	}
	t.AIStatus = status
	return nil
}

// Jobs returns all jobs in the store. Test helper.
func (s *MemoryStore) Jobs() []*models.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ProcessingJob
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingJobs returns only jobs in the pending state. Test helper.
func (s *MemoryStore) PendingJobs() []*models.ProcessingJob {
	var out []*models.ProcessingJob
	for _, j := range s.Jobs() {
		if j.Status == models.AIStatusPending {
			out = append(out, j)
		}
	}
	return out
}
