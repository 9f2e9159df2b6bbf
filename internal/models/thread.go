package models

import (
	"encoding/json"
	"time"
)

// ThreadFlags are the aggregated conversation flags, recomputed as an OR over
// the thread's messages whenever a message is inserted or updated.
type ThreadFlags struct {
	Unread    bool `json:"unread"`
	Starred   bool `json:"starred"`
	Important bool `json:"important"`
	Inbox     bool `json:"inbox"`
	Spam      bool `json:"spam"`
	Trash     bool `json:"trash"`
}

// Thread is a conversation grouped by the provider's native thread id,
// unique per channel. MessageCount always equals the number of messages
// currently linked to the thread.
type Thread struct {
	ID               string          `json:"id"`
	ChannelID        string          `json:"channel_id"`
	ProviderThreadID string          `json:"provider_thread_id"`
	Subject          string          `json:"subject"`
	Participants     []string        `json:"participants,omitempty"`
	LastMessageAt    *time.Time      `json:"last_message_at,omitempty"`
	MessageCount     int             `json:"message_count"`
	Flags            ThreadFlags     `json:"flags"`
	Labels           []string        `json:"labels,omitempty"`
	Analysis         json.RawMessage `json:"analysis,omitempty"`
	AIStatus         AIStatus        `json:"ai_status"`
	Messages         []*Message      `json:"messages,omitempty"`
}
