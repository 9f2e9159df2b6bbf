package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kukicivan/ai-hub-sub002/internal/db"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// MessagesHandler serves message-level API requests.
type MessagesHandler struct {
	pool *pgxpool.Pool
}

// NewMessagesHandler creates a new MessagesHandler instance.
func NewMessagesHandler(pool *pgxpool.Pool) *MessagesHandler {
	return &MessagesHandler{pool: pool}
}

// HandleMessageAction routes /api/v1/messages/{id}/reprocess.
func (h *MessagesHandler) HandleMessageAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/messages/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	messageID, action := parts[0], parts[1]

	if action == "reprocess" && r.Method == http.MethodPost {
		h.reprocess(w, r, messageID)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

// reprocess puts a message back on the AI queue regardless of its current AI
// status. This is the only path that moves a terminal AI state back to
// pending.
func (h *MessagesHandler) reprocess(w http.ResponseWriter, r *http.Request, messageID string) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	msg, err := db.GetMessage(ctx, h.pool, messageID)
	if errors.Is(err, engine.ErrMessageNotFound) {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("api: failed to load message")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	channel, err := db.GetChannel(ctx, h.pool, msg.ChannelID)
	if err != nil || channel.UserID != userID {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	if err := db.SetMessageAIStatus(ctx, h.pool, msg.ID, models.AIStatusPending, ""); err != nil {
		log.Error().Err(err).Msg("api: failed to reset AI status")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	job := &models.ProcessingJob{
		Type:          models.JobTypeMessageAnalysis,
		MessageID:     msg.ID,
		ThreadID:      msg.ThreadID,
		Status:        models.AIStatusPending,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := db.EnqueueJob(ctx, h.pool, job); err != nil {
		log.Error().Err(err).Msg("api: failed to enqueue reprocess job")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "reprocess queued",
		"job_id": job.ID,
	})
}
