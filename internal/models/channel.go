package models

import "time"

// ChannelType identifies the external provider behind a channel.
type ChannelType string

const (
	ChannelTypeGmail    ChannelType = "gmail"
	ChannelTypeIMAP     ChannelType = "imap"
	ChannelTypeViber    ChannelType = "viber"
	ChannelTypeWhatsApp ChannelType = "whatsapp"
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeSlack    ChannelType = "slack"
)

// SyncState is the per-channel sync state machine. At most one sync run may be
// in flight per channel; the transition idle -> syncing is the claim.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateSyncing SyncState = "syncing"
	SyncStateError   SyncState = "error"
)

// HealthState is the rolling health status of a channel connection.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Channel is one connected external messaging account. The sync cursor and
// last-sync time live here, never inside an adapter instance, so any adapter
// can resume a sync it has never seen before.
type Channel struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Type            ChannelType `json:"type"`
	ExternalID      string      `json:"external_id"`
	DisplayName     string      `json:"display_name"`
	EncryptedConfig []byte      `json:"-"`
	Active          bool        `json:"active"`
	SyncState       SyncState   `json:"sync_state"`
	SyncCursor      string      `json:"sync_cursor,omitempty"`
	LastSyncAt      *time.Time  `json:"last_sync_at,omitempty"`
	NextSyncAt      *time.Time  `json:"next_sync_at,omitempty"`
	FailureCount    int         `json:"failure_count"`
	HealthStatus    HealthState `json:"health_status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// SyncLogStatus is the lifecycle of one orchestrator run.
type SyncLogStatus string

const (
	SyncLogRunning   SyncLogStatus = "running"
	SyncLogCompleted SyncLogStatus = "completed"
	SyncLogFailed    SyncLogStatus = "failed"
)

// SyncLog records one run of the sync orchestrator for a channel.
type SyncLog struct {
	ID                string        `json:"id"`
	ChannelID         string        `json:"channel_id"`
	Status            SyncLogStatus `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	MessagesFetched   int           `json:"messages_fetched"`
	MessagesProcessed int           `json:"messages_processed"`
	MessagesFailed    int           `json:"messages_failed"`
	Errors            []string      `json:"errors,omitempty"`
}
