package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/db"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
	"github.com/kukicivan/ai-hub-sub002/internal/testutil"
)

func seedThreadWithMessage(t *testing.T, pool *pgxpool.Pool, channelID string) (*models.Thread, *models.Message) {
	t.Helper()
	ctx := context.Background()

	thread := &models.Thread{
		ChannelID:        channelID,
		ProviderThreadID: "provider-thread-1",
		Subject:          "Quarterly review",
		AIStatus:         models.AIStatusPending,
	}
	if err := db.CreateThread(ctx, pool, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	sentAt := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	msg := &models.Message{
		ChannelID:         channelID,
		ThreadID:          thread.ID,
		ProviderMessageID: "provider-msg-1",
		MessageNumber:     1,
		SentAt:            sentAt,
		ReceivedAt:        sentAt,
		Sender:            models.Address{Address: "carol@example.com"},
		BodyText:          "Draft attached, please review.",
		ContentHash:       "hash-1",
		Priority:          models.PriorityNormal,
		Status:            models.MessageStatusNew,
		AIStatus:          models.AIStatusFailed,
	}
	if err := db.InsertMessage(ctx, pool, msg, nil, nil); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	return thread, msg
}

func TestGetThread(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	channel := seedChannel(t, pool, "alice@example.com")
	thread, msg := seedThreadWithMessage(t, pool, channel.ID)
	handler := NewThreadsHandler(pool)

	t.Run("returns thread with messages", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetThread(w, authedRequest(http.MethodGet, "/api/v1/thread/"+thread.ID, nil, "alice@example.com"))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var got models.Thread
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if got.Subject != "Quarterly review" {
			t.Errorf("Expected subject, got %q", got.Subject)
		}
		if len(got.Messages) != 1 || got.Messages[0].ID != msg.ID {
			t.Errorf("Expected thread to carry its message, got %+v", got.Messages)
		}
	})

	t.Run("requires channel_id for thread listing", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetThreads(w, authedRequest(http.MethodGet, "/api/v1/threads", nil, "alice@example.com"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 without channel_id, got %d", w.Code)
		}
	})

	t.Run("lists threads for owned channel", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetThreads(w, authedRequest(http.MethodGet, "/api/v1/threads?channel_id="+channel.ID, nil, "alice@example.com"))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var resp struct {
			Threads []*models.Thread `json:"threads"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(resp.Threads) != 1 {
			t.Errorf("Expected 1 thread, got %d", len(resp.Threads))
		}
	})

	t.Run("hides threads behind foreign channels", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetThread(w, authedRequest(http.MethodGet, "/api/v1/thread/"+thread.ID, nil, "mallory@example.com"))

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for foreign thread, got %d", w.Code)
		}
	})
}

func TestReprocessMessage(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	channel := seedChannel(t, pool, "alice@example.com")
	_, msg := seedThreadWithMessage(t, pool, channel.ID)
	handler := NewMessagesHandler(pool)

	t.Run("resets terminal AI state and queues a job", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleMessageAction(w, authedRequest(http.MethodPost, "/api/v1/messages/"+msg.ID+"/reprocess", nil, "alice@example.com"))

		if w.Code != http.StatusAccepted {
			t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
		}
		var resp map[string]string
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp["job_id"] == "" {
			t.Error("Expected a job ID in the response")
		}

		reloaded, err := db.GetMessage(ctx, pool, msg.ID)
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if reloaded.AIStatus != models.AIStatusPending {
			t.Errorf("Expected pending AI status after reprocess, got %s", reloaded.AIStatus)
		}

		job, err := db.ClaimNextJob(ctx, pool, time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimNextJob failed: %v", err)
		}
		if job.MessageID != msg.ID {
			t.Errorf("Expected job for message %s, got %s", msg.ID, job.MessageID)
		}
	})

	t.Run("hides other users' messages", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleMessageAction(w, authedRequest(http.MethodPost, "/api/v1/messages/"+msg.ID+"/reprocess", nil, "mallory@example.com"))

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for foreign message, got %d", w.Code)
		}
	})
}
