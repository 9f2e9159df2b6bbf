package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kukicivan/ai-hub-sub002/internal/adapter"
	"github.com/kukicivan/ai-hub-sub002/internal/crypto"
	"github.com/kukicivan/ai-hub-sub002/internal/db"
	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// SyncTrigger starts a sync cycle for a channel. Implemented by
// engine.Orchestrator in production.
type SyncTrigger interface {
	SyncChannel(ctx context.Context, channelID string) error
}

// ChannelsHandler handles channel management API requests.
type ChannelsHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	registry  *adapter.Registry
	syncer    SyncTrigger
}

// NewChannelsHandler creates a new ChannelsHandler instance.
func NewChannelsHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor, registry *adapter.Registry, syncer SyncTrigger) *ChannelsHandler {
	return &ChannelsHandler{
		pool:      pool,
		encryptor: encryptor,
		registry:  registry,
		syncer:    syncer,
	}
}

// HandleChannels dispatches /api/v1/channels by method.
func (h *ChannelsHandler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateChannel(w, r)
	case http.MethodGet:
		h.ListChannels(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// CreateChannel connects a new channel for the authenticated user. The
// provided configuration is validated offline by the matching adapter and
// stored encrypted.
func (h *ChannelsHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	var req models.ChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	channel := &models.Channel{
		UserID:       userID,
		Type:         req.Type,
		ExternalID:   req.ExternalID,
		DisplayName:  req.DisplayName,
		Active:       true,
		SyncState:    models.SyncStateIdle,
		HealthStatus: models.HealthHealthy,
	}

	adp, err := h.registry.New(channel, &req.Config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := adp.ValidateConfiguration(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	blob, err := h.encryptor.EncryptConfig(&req.Config)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to encrypt channel config")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	channel.EncryptedConfig = blob

	if err := db.CreateChannel(ctx, h.pool, channel); err != nil {
		log.Error().Err(err).Msg("api: failed to create channel")
		http.Error(w, "Failed to create channel", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

// ListChannels returns all channels of the authenticated user.
func (h *ChannelsHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	channels, err := db.ListChannels(ctx, h.pool, userID)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to list channels")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if channels == nil {
		channels = []*models.Channel{}
	}

	writeJSON(w, http.StatusOK, channels)
}

// HandleChannelAction routes /api/v1/channels/{id}/sync and
// /api/v1/channels/{id}/health.
func (h *ChannelsHandler) HandleChannelAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/channels/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	channelID, action := parts[0], parts[1]

	switch {
	case action == "sync" && r.Method == http.MethodPost:
		h.triggerSync(w, r, channelID)
	case action == "health" && r.Method == http.MethodGet:
		h.getHealth(w, r, channelID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *ChannelsHandler) triggerSync(w http.ResponseWriter, r *http.Request, channelID string) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	channel, err := h.loadOwnedChannel(ctx, w, userID, channelID)
	if err != nil {
		return
	}

	// The orchestrator coalesces overlapping triggers, so firing while a sync
	// is already in flight is harmless.
	go func() {
		if err := h.syncer.SyncChannel(context.Background(), channel.ID); err != nil {
			log.Warn().Err(err).Str("channel_id", channel.ID).Msg("api: triggered sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (h *ChannelsHandler) getHealth(w http.ResponseWriter, r *http.Request, channelID string) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	channel, err := h.loadOwnedChannel(ctx, w, userID, channelID)
	if err != nil {
		return
	}

	logs, err := db.ListSyncLogs(ctx, h.pool, channel.ID, 10)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to list sync logs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id":    channel.ID,
		"health_status": channel.HealthStatus,
		"sync_state":    channel.SyncState,
		"failure_count": channel.FailureCount,
		"last_sync_at":  channel.LastSyncAt,
		"next_sync_at":  channel.NextSyncAt,
		"recent_syncs":  logs,
		"probe":         h.probeChannel(ctx, channel),
	})
}

// probeChannel runs the adapter's live health check on demand: connect, probe,
// disconnect. Failures along the way are reported as an unhealthy probe rather
// than failing the request, since the stored channel state is still useful.
func (h *ChannelsHandler) probeChannel(ctx context.Context, channel *models.Channel) adapter.HealthStatus {
	failed := func(reason string) adapter.HealthStatus {
		return adapter.HealthStatus{
			Status:    models.HealthUnhealthy,
			LastCheck: time.Now(),
			Errors:    []string{reason},
		}
	}

	cfg, err := h.encryptor.DecryptConfig(channel.EncryptedConfig)
	if err != nil {
		return failed("channel configuration is unreadable")
	}

	adp, err := h.registry.New(channel, cfg)
	if err != nil {
		return failed(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := adp.Connect(ctx); err != nil {
		return failed(err.Error())
	}
	defer func() {
		if err := adp.Disconnect(); err != nil {
			log.Warn().Err(err).Str("channel_id", channel.ID).Msg("api: probe disconnect failed")
		}
	}()

	return adp.GetHealthStatus(ctx)
}

// loadOwnedChannel fetches a channel and checks it belongs to the user,
// writing the HTTP error itself when it does not.
func (h *ChannelsHandler) loadOwnedChannel(ctx context.Context, w http.ResponseWriter, userID, channelID string) (*models.Channel, error) {
	channel, err := db.GetChannel(ctx, h.pool, channelID)
	if errors.Is(err, engine.ErrChannelNotFound) {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return nil, err
	}
	if err != nil {
		log.Error().Err(err).Msg("api: failed to load channel")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, err
	}
	if channel.UserID != userID {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return nil, engine.ErrChannelNotFound
	}
	return channel, nil
}
