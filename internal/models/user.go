package models

import (
	"time"
)

// User is the owner of one or more channels (one per provider type).
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelConfig is the decrypted, provider-shaped channel configuration.
// It is stored encrypted as an opaque blob on the channel record; only the
// adapter for the channel's type understands which fields matter.
type ChannelConfig struct {
	// Gmail
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	// IMAP
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UseTLS   bool   `json:"use_tls,omitempty"`
	Mailbox  string `json:"mailbox,omitempty"`
	// User goals passed to the AI capability alongside message content.
	UserGoals []string `json:"user_goals,omitempty"`
}

// ChannelRequest is the payload for connecting a new channel.
type ChannelRequest struct {
	Type        ChannelType   `json:"type"`
	ExternalID  string        `json:"external_id"`
	DisplayName string        `json:"display_name"`
	Config      ChannelConfig `json:"config"`
}
