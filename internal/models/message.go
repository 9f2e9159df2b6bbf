package models

import (
	"encoding/json"
	"time"
)

// MessageStatus is the lifecycle status of a message, independent of its AI
// processing status.
type MessageStatus string

const (
	MessageStatusNew        MessageStatus = "new"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusProcessed  MessageStatus = "processed"
	MessageStatusArchived   MessageStatus = "archived"
	MessageStatusError      MessageStatus = "error"
)

// AIStatus is the AI-processing state machine for a message or thread.
// It never regresses from a terminal state without an explicit reprocess request.
type AIStatus string

const (
	AIStatusPending    AIStatus = "pending"
	AIStatusProcessing AIStatus = "processing"
	AIStatusCompleted  AIStatus = "completed"
	AIStatusFailed     AIStatus = "failed"
	AIStatusSkipped    AIStatus = "skipped"
)

// PriorityTier buckets messages for display ordering.
type PriorityTier string

const (
	PriorityLow    PriorityTier = "low"
	PriorityNormal PriorityTier = "normal"
	PriorityHigh   PriorityTier = "high"
	PriorityUrgent PriorityTier = "urgent"
)

// Address is a structured sender or recipient.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// Reaction is a provider-side reaction attached to a message.
type Reaction struct {
	Emoji  string    `json:"emoji"`
	Sender string    `json:"sender"`
	At     time.Time `json:"at"`
}

// MessageFlags are per-message boolean state flags. The thread-level flags are
// a recomputed OR over these.
type MessageFlags struct {
	Draft   bool `json:"draft"`
	Unread  bool `json:"unread"`
	Starred bool `json:"starred"`
	Spam    bool `json:"spam"`
	Trash   bool `json:"trash"`
	Inbox   bool `json:"inbox"`
	Chat    bool `json:"chat"`
}

// MessageMetadata is the free-form metadata bag. Unknown provider fields are
// preserved under CustomHeaders rather than dropped.
type MessageMetadata struct {
	Subject       string            `json:"subject,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	LabelIDs      []string          `json:"label_ids,omitempty"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	Confidence    float64           `json:"confidence,omitempty"`
}

// Message is one normalized unit of communication.
// (ChannelID, ProviderMessageID) is the dedup key and is globally unique.
type Message struct {
	ID                string          `json:"id"`
	ChannelID         string          `json:"channel_id"`
	ThreadID          string          `json:"thread_id"`
	ProviderMessageID string          `json:"provider_message_id"`
	MessageNumber     int             `json:"message_number"`
	ParentMessageID   string          `json:"parent_message_id,omitempty"`
	SentAt            time.Time       `json:"sent_at"`
	ReceivedAt        time.Time       `json:"received_at"`
	Sender            Address         `json:"sender"`
	To                []Address       `json:"to,omitempty"`
	CC                []Address       `json:"cc,omitempty"`
	BCC               []Address       `json:"bcc,omitempty"`
	ReplyTo           []Address       `json:"reply_to,omitempty"`
	BodyText          string          `json:"body_text"`
	BodyHTML          string          `json:"body_html,omitempty"`
	Snippet           string          `json:"snippet,omitempty"`
	RawSource         []byte          `json:"-"`
	AttachmentCount   int             `json:"attachment_count"`
	Reactions         []Reaction      `json:"reactions,omitempty"`
	Metadata          MessageMetadata `json:"metadata"`
	Flags             MessageFlags    `json:"flags"`
	Priority          PriorityTier    `json:"priority"`
	Status            MessageStatus   `json:"status"`
	ContentHash       string          `json:"content_hash"`
	Analysis          json.RawMessage `json:"analysis,omitempty"`
	AIStatus          AIStatus        `json:"ai_status"`
	AITokensUsed      int             `json:"ai_tokens_used"`
	AICostMicroUSD    int64           `json:"ai_cost_micro_usd"`
	AIError           string          `json:"ai_error,omitempty"`
	PrimaryActionType string          `json:"primary_action_type,omitempty"`
	PrimaryActionColor string         `json:"primary_action_color,omitempty"`
	Attachments       []Attachment    `json:"attachments,omitempty"`
	Header            *Header         `json:"header,omitempty"`
}

// ScanStatus is the attachment safety-scan result.
type ScanStatus string

const (
	ScanPending ScanStatus = "pending"
	ScanClean   ScanStatus = "clean"
	ScanFlagged ScanStatus = "flagged"
)

// Attachment belongs to exactly one message. Write-once after creation except
// for the scan step.
type Attachment struct {
	ID                   string     `json:"id"`
	MessageID            string     `json:"message_id"`
	ProviderAttachmentID string     `json:"provider_attachment_id,omitempty"`
	Filename             string     `json:"filename"`
	MimeType             string     `json:"mime_type"`
	SizeBytes            int64      `json:"size_bytes"`
	IsInline             bool       `json:"is_inline"`
	ContentHash          string     `json:"content_hash,omitempty"`
	StorageLocation      string     `json:"storage_location,omitempty"`
	ScanStatus           ScanStatus `json:"scan_status"`
}

// Header holds the raw protocol-level fields needed for threading and
// spam/security signals. Write-once at ingestion.
type Header struct {
	MessageID       string   `json:"message_id"`
	MessageIDHeader string   `json:"message_id_header,omitempty"`
	InReplyTo       string   `json:"in_reply_to,omitempty"`
	References      []string `json:"references,omitempty"`
	SPFResult       string   `json:"spf_result,omitempty"`
	DKIMResult      string   `json:"dkim_result,omitempty"`
	AuthResults     string   `json:"auth_results,omitempty"`
	SpamScore       float64  `json:"spam_score,omitempty"`
}

// Label is a named tag, scoped per user, many-to-many with messages and threads.
type Label struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}
