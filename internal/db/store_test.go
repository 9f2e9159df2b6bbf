package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
	"github.com/kukicivan/ai-hub-sub002/internal/testutil"
)

func TestChannelLifecycle(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	user, err := GetOrCreateUser(ctx, pool, "test@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	channel := &models.Channel{
		UserID:          user.ID,
		Type:            models.ChannelTypeGmail,
		DisplayName:     "Work Gmail",
		EncryptedConfig: []byte("blob"),
		Active:          true,
		SyncState:       models.SyncStateIdle,
		HealthStatus:    models.HealthHealthy,
	}

	t.Run("creates and retrieves channel", func(t *testing.T) {
		if err := CreateChannel(ctx, pool, channel); err != nil {
			t.Fatalf("CreateChannel failed: %v", err)
		}
		if channel.ID == "" {
			t.Fatal("Expected channel ID to be set")
		}

		got, err := GetChannel(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		if got.Type != models.ChannelTypeGmail {
			t.Errorf("Expected type gmail, got %s", got.Type)
		}
		if got.SyncState != models.SyncStateIdle {
			t.Errorf("Expected idle sync state, got %s", got.SyncState)
		}
	})

	t.Run("rejects second channel of same type per user", func(t *testing.T) {
		dup := &models.Channel{
			UserID:          user.ID,
			Type:            models.ChannelTypeGmail,
			EncryptedConfig: []byte("blob"),
			Active:          true,
			SyncState:       models.SyncStateIdle,
			HealthStatus:    models.HealthHealthy,
		}
		if err := CreateChannel(ctx, pool, dup); err == nil {
			t.Error("Expected unique violation for duplicate (user, type)")
		}
	})

	t.Run("claim is exclusive until released", func(t *testing.T) {
		claimed, err := ClaimChannelSync(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("ClaimChannelSync failed: %v", err)
		}
		if !claimed {
			t.Fatal("Expected first claim to succeed")
		}

		again, err := ClaimChannelSync(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("ClaimChannelSync failed: %v", err)
		}
		if again {
			t.Error("Expected overlapping claim to be refused")
		}

		got, err := GetChannel(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		got.SyncState = models.SyncStateIdle
		if err := UpdateChannel(ctx, pool, got); err != nil {
			t.Fatalf("UpdateChannel failed: %v", err)
		}

		released, err := ClaimChannelSync(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("ClaimChannelSync failed: %v", err)
		}
		if !released {
			t.Error("Expected claim to succeed after release")
		}
	})

	t.Run("lists due channels", func(t *testing.T) {
		got, err := GetChannel(ctx, pool, channel.ID)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		got.SyncState = models.SyncStateIdle
		got.NextSyncAt = nil
		if err := UpdateChannel(ctx, pool, got); err != nil {
			t.Fatalf("UpdateChannel failed: %v", err)
		}

		due, err := ListDueChannels(ctx, pool, time.Now().UTC())
		if err != nil {
			t.Fatalf("ListDueChannels failed: %v", err)
		}
		if len(due) != 1 {
			t.Fatalf("Expected 1 due channel, got %d", len(due))
		}

		future := time.Now().UTC().Add(time.Hour)
		got.NextSyncAt = &future
		if err := UpdateChannel(ctx, pool, got); err != nil {
			t.Fatalf("UpdateChannel failed: %v", err)
		}

		due, err = ListDueChannels(ctx, pool, time.Now().UTC())
		if err != nil {
			t.Fatalf("ListDueChannels failed: %v", err)
		}
		if len(due) != 0 {
			t.Errorf("Expected no due channels, got %d", len(due))
		}
	})

	t.Run("missing channel returns sentinel", func(t *testing.T) {
		_, err := GetChannel(ctx, pool, "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, engine.ErrChannelNotFound) {
			t.Errorf("Expected ErrChannelNotFound, got %v", err)
		}
	})
}

func TestMessagePersistence(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	user, err := GetOrCreateUser(ctx, pool, "test@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	channel := &models.Channel{
		UserID:          user.ID,
		Type:            models.ChannelTypeIMAP,
		EncryptedConfig: []byte("blob"),
		Active:          true,
		SyncState:       models.SyncStateIdle,
		HealthStatus:    models.HealthHealthy,
	}
	if err := CreateChannel(ctx, pool, channel); err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}

	thread := &models.Thread{
		ChannelID:        channel.ID,
		ProviderThreadID: "provider-thread-1",
		Subject:          "Greetings",
		AIStatus:         models.AIStatusPending,
	}
	if err := CreateThread(ctx, pool, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	sentAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := &models.Message{
		ChannelID:         channel.ID,
		ThreadID:          thread.ID,
		ProviderMessageID: "provider-msg-1",
		MessageNumber:     1,
		SentAt:            sentAt,
		ReceivedAt:        sentAt,
		Sender:            models.Address{Address: "alice@example.com", Name: "Alice"},
		To:                []models.Address{{Address: "bob@example.com"}},
		BodyText:          "hello there",
		Snippet:           "hello there",
		Metadata:          models.MessageMetadata{Subject: "Greetings", CustomHeaders: map[string]string{"X-Campaign": "42"}},
		Flags:             models.MessageFlags{Inbox: true, Unread: true},
		Priority:          models.PriorityNormal,
		Status:            models.MessageStatusNew,
		ContentHash:       "hash-1",
		AIStatus:          models.AIStatusPending,
		AttachmentCount:   1,
	}
	attachments := []models.Attachment{
		{ProviderAttachmentID: "att-1", Filename: "notes.txt", MimeType: "text/plain", SizeBytes: 12, ScanStatus: models.ScanPending},
	}
	header := &models.Header{MessageIDHeader: "<m1@example.com>", References: []string{"<root@example.com>"}}

	t.Run("inserts message with attachments and header", func(t *testing.T) {
		if err := InsertMessage(ctx, pool, msg, attachments, header); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if msg.ID == "" {
			t.Fatal("Expected message ID to be set")
		}

		got, err := GetMessageByProviderID(ctx, pool, channel.ID, "provider-msg-1")
		if err != nil {
			t.Fatalf("GetMessageByProviderID failed: %v", err)
		}
		if got.Sender.Address != "alice@example.com" {
			t.Errorf("Expected sender alice@example.com, got %s", got.Sender.Address)
		}
		if got.Metadata.CustomHeaders["X-Campaign"] != "42" {
			t.Error("Expected custom header to round-trip")
		}

		atts, err := GetAttachmentsForMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetAttachmentsForMessage failed: %v", err)
		}
		if len(atts) != 1 || atts[0].Filename != "notes.txt" {
			t.Errorf("Expected one attachment notes.txt, got %+v", atts)
		}
	})

	t.Run("duplicate provider message id is rejected", func(t *testing.T) {
		dup := *msg
		dup.ID = ""
		if err := InsertMessage(ctx, pool, &dup, nil, nil); err == nil {
			t.Error("Expected unique violation on (channel, provider message id)")
		}
	})

	t.Run("update never overwrites an existing body", func(t *testing.T) {
		got, err := GetMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		got.BodyText = "rewritten body"
		got.Flags.Unread = false
		if err := UpdateMessage(ctx, pool, got); err != nil {
			t.Fatalf("UpdateMessage failed: %v", err)
		}

		reloaded, err := GetMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if reloaded.BodyText != "hello there" {
			t.Errorf("Expected original body preserved, got %q", reloaded.BodyText)
		}
		if reloaded.Flags.Unread {
			t.Error("Expected flag update to apply")
		}
	})

	t.Run("thread upsert resolves to the same row", func(t *testing.T) {
		again := &models.Thread{
			ChannelID:        channel.ID,
			ProviderThreadID: "provider-thread-1",
			AIStatus:         models.AIStatusPending,
		}
		if err := CreateThread(ctx, pool, again); err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
		if again.ID != thread.ID {
			t.Errorf("Expected upsert to resolve to existing thread %s, got %s", thread.ID, again.ID)
		}

		got, err := GetThread(ctx, pool, thread.ID)
		if err != nil {
			t.Fatalf("GetThread failed: %v", err)
		}
		if got.Subject != "Greetings" {
			t.Errorf("Expected subject preserved, got %q", got.Subject)
		}
	})

	t.Run("stores analysis results", func(t *testing.T) {
		usage := models.AnalysisUsage{TotalTokens: 321, CostMicroUSD: 150}
		if err := SetMessageAnalysis(ctx, pool, msg.ID, []byte(`{"summary":"hi"}`), usage); err != nil {
			t.Fatalf("SetMessageAnalysis failed: %v", err)
		}
		if err := SetMessagePrimaryAction(ctx, pool, msg.ID, "respond", "blue"); err != nil {
			t.Fatalf("SetMessagePrimaryAction failed: %v", err)
		}
		if err := SetMessageAIStatus(ctx, pool, msg.ID, models.AIStatusCompleted, ""); err != nil {
			t.Fatalf("SetMessageAIStatus failed: %v", err)
		}

		got, err := GetMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if got.AITokensUsed != 321 || got.AICostMicroUSD != 150 {
			t.Errorf("Expected usage to persist, got tokens=%d cost=%d", got.AITokensUsed, got.AICostMicroUSD)
		}
		if got.PrimaryActionType != "respond" || got.PrimaryActionColor != "blue" {
			t.Errorf("Expected primary action to persist, got %s/%s", got.PrimaryActionType, got.PrimaryActionColor)
		}
		if got.AIStatus != models.AIStatusCompleted {
			t.Errorf("Expected completed AI status, got %s", got.AIStatus)
		}
	})
}

func TestJobQueue(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	job := &models.ProcessingJob{
		Type:          models.JobTypeMessageAnalysis,
		MessageID:     "msg-1",
		Status:        models.AIStatusPending,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}

	t.Run("enqueue deduplicates pending jobs", func(t *testing.T) {
		if err := EnqueueJob(ctx, pool, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		dup := &models.ProcessingJob{
			Type:          models.JobTypeMessageAnalysis,
			MessageID:     "msg-1",
			Status:        models.AIStatusPending,
			NextAttemptAt: time.Now().UTC(),
		}
		if err := EnqueueJob(ctx, pool, dup); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if dup.ID != job.ID {
			t.Errorf("Expected duplicate enqueue to resolve to job %s, got %s", job.ID, dup.ID)
		}
	})

	t.Run("claim transitions pending to processing", func(t *testing.T) {
		claimed, err := ClaimNextJob(ctx, pool, time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimNextJob failed: %v", err)
		}
		if claimed.ID != job.ID {
			t.Errorf("Expected to claim job %s, got %s", job.ID, claimed.ID)
		}
		if claimed.Status != models.AIStatusProcessing {
			t.Errorf("Expected processing status, got %s", claimed.Status)
		}
		if claimed.Attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", claimed.Attempts)
		}

		if _, err := ClaimNextJob(ctx, pool, time.Now().UTC()); !errors.Is(err, engine.ErrNoPendingJobs) {
			t.Errorf("Expected ErrNoPendingJobs, got %v", err)
		}
	})

	t.Run("reaper returns stuck jobs to pending", func(t *testing.T) {
		reaped, err := ReapOrphanJobs(ctx, pool, time.Now().UTC().Add(time.Second))
		if err != nil {
			t.Fatalf("ReapOrphanJobs failed: %v", err)
		}
		if reaped != 1 {
			t.Fatalf("Expected 1 reaped job, got %d", reaped)
		}

		claimed, err := ClaimNextJob(ctx, pool, time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimNextJob after reap failed: %v", err)
		}
		if claimed.Attempts != 2 {
			t.Errorf("Expected second attempt after reap, got %d", claimed.Attempts)
		}
	})
}
