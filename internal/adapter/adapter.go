// Package adapter defines the capability surface every provider integration
// must implement, plus the concrete Gmail and IMAP implementations. Adapters
// are stateless except for the live connection handle: the sync cursor and
// last-sync time live on the channel record, so any adapter instance can
// resume a sync from a cursor it has never seen before. Instances are scoped
// to one sync run and never shared across concurrent runs.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// HistoryPage is the result of one incremental pull against a provider's
// change log.
type HistoryPage struct {
	Messages   []models.RawMessage
	NextCursor string
}

// HealthStatus is a cheap, side-effect-free probe result the orchestrator can
// poll independently of syncing.
type HealthStatus struct {
	Status    models.HealthState `json:"status"`
	LastCheck time.Time          `json:"last_check"`
	Latency   time.Duration      `json:"latency"`
	Errors    []string           `json:"errors,omitempty"`
}

// Adapter is the uniform capability set over one external messaging API.
type Adapter interface {
	// Connect establishes and validates credentials. It fails with an
	// *AuthError on invalid or expired credentials and a *ConfigError on
	// malformed configuration.
	Connect(ctx context.Context) error

	// Disconnect tears down the local session. No external side effects.
	Disconnect() error

	// IsConnected reports whether the adapter holds a live session.
	IsConnected() bool

	// ValidateConfiguration sanity-checks the channel configuration before
	// first use, without touching the network.
	ValidateConfiguration() error

	// ReceiveMessages does a time-windowed pull, used for full/backfill sync
	// or when no cursor exists. Repeated calls with the same window may
	// return duplicates; dedup happens downstream.
	ReceiveMessages(ctx context.Context, since *time.Time, limit int) ([]models.RawMessage, error)

	// ReceiveMessagesViaHistory does an incremental pull using the provider's
	// change-log cursor. It fails with a *CursorExpiredError when the provider
	// can no longer resolve the cursor; the caller must fall back to a full
	// ReceiveMessages pass and reset the cursor.
	ReceiveMessagesViaHistory(ctx context.Context, cursor string) (*HistoryPage, error)

	// GetHealthStatus is a cheap health probe.
	GetHealthStatus(ctx context.Context) HealthStatus
}

// CursorBootstrapper is an optional adapter capability: report the provider's
// current change-log position without fetching anything. The orchestrator
// uses it after a full windowed sync to seed the incremental cursor.
type CursorBootstrapper interface {
	CurrentCursor(ctx context.Context) (string, error)
}

// Factory builds an adapter for a channel from its decrypted configuration.
type Factory func(channel *models.Channel, cfg *models.ChannelConfig) (Adapter, error)

// Registry selects the adapter implementation by the channel's stored type.
// Provider behavior never branches outside the adapter boundary.
type Registry struct {
	factories map[models.ChannelType]Factory
}

// NewRegistry returns a registry with the built-in providers registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[models.ChannelType]Factory)}
	r.Register(models.ChannelTypeGmail, NewGmailAdapter)
	r.Register(models.ChannelTypeIMAP, NewIMAPAdapter)
	return r
}

// Register adds or replaces the factory for a channel type.
func (r *Registry) Register(t models.ChannelType, f Factory) {
	r.factories[t] = f
}

// New builds an adapter for the given channel.
func (r *Registry) New(channel *models.Channel, cfg *models.ChannelConfig) (Adapter, error) {
	factory, ok := r.factories[channel.Type]
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported channel type %q", channel.Type)}
	}
	return factory(channel, cfg)
}
