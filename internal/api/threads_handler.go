package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kukicivan/ai-hub-sub002/internal/db"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// ThreadsHandler serves the unified thread read API.
type ThreadsHandler struct {
	pool *pgxpool.Pool
}

// NewThreadsHandler creates a new ThreadsHandler instance.
func NewThreadsHandler(pool *pgxpool.Pool) *ThreadsHandler {
	return &ThreadsHandler{pool: pool}
}

// GetThreads returns a paginated list of threads for a channel, most recent
// activity first.
func (h *ThreadsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		http.Error(w, "channel_id query parameter is required", http.StatusBadRequest)
		return
	}

	// Threads are only visible through channels the user owns.
	channel, err := db.GetChannel(ctx, h.pool, channelID)
	if errors.Is(err, engine.ErrChannelNotFound) {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("api: failed to load channel")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if channel.UserID != userID {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}

	page, limit := ParsePaginationParams(r, 100)
	offset := (page - 1) * limit

	threads, err := db.ListThreads(ctx, h.pool, channelID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to list threads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if threads == nil {
		threads = []*models.Thread{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"pagination": map[string]int{
			"page":     page,
			"per_page": limit,
		},
	})
}

// GetThread returns a single thread with its messages in conversation order.
func (h *ThreadsHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	threadID := strings.TrimPrefix(r.URL.Path, "/api/v1/thread/")
	if threadID == "" || strings.Contains(threadID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	thread, err := db.GetThread(ctx, h.pool, threadID)
	if errors.Is(err, engine.ErrThreadNotFound) {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("api: failed to load thread")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	channel, err := db.GetChannel(ctx, h.pool, thread.ChannelID)
	if err != nil || channel.UserID != userID {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}

	messages, err := db.ListThreadMessages(ctx, h.pool, thread.ID)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to list thread messages")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	thread.Messages = messages

	writeJSON(w, http.StatusOK, thread)
}
