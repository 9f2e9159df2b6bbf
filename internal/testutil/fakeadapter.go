package testutil

import (
	"context"
	"time"

	"github.com/kukicivan/ai-hub-sub002/internal/adapter"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// FakeAdapter is a scripted adapter for orchestrator tests. Populate the
// function fields to control each call; unset fields succeed with empty
// results.
type FakeAdapter struct {
	ConnectErr    error
	ValidateErr   error
	DisconnectErr error

	ReceiveFunc func(ctx context.Context, since *time.Time, limit int) ([]models.RawMessage, error)
	HistoryFunc func(ctx context.Context, cursor string) (*adapter.HistoryPage, error)
	CursorFunc  func(ctx context.Context) (string, error)

	Connected    bool
	ReceiveCalls int
	HistoryCalls int
}

var _ adapter.Adapter = (*FakeAdapter)(nil)

func (f *FakeAdapter) Connect(context.Context) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.Connected = true
	return nil
}

func (f *FakeAdapter) Disconnect() error {
	f.Connected = false
	return f.DisconnectErr
}

func (f *FakeAdapter) IsConnected() bool { return f.Connected }

func (f *FakeAdapter) ValidateConfiguration() error { return f.ValidateErr }

func (f *FakeAdapter) ReceiveMessages(ctx context.Context, since *time.Time, limit int) ([]models.RawMessage, error) {
	f.ReceiveCalls++
	if f.ReceiveFunc != nil {
		return f.ReceiveFunc(ctx, since, limit)
	}
	return nil, nil
}

func (f *FakeAdapter) ReceiveMessagesViaHistory(ctx context.Context, cursor string) (*adapter.HistoryPage, error) {
	f.HistoryCalls++
	if f.HistoryFunc != nil {
		return f.HistoryFunc(ctx, cursor)
	}
	return &adapter.HistoryPage{NextCursor: cursor}, nil
}

func (f *FakeAdapter) GetHealthStatus(context.Context) adapter.HealthStatus {
	status := models.HealthHealthy
	if !f.Connected {
		status = models.HealthUnhealthy
	}
	return adapter.HealthStatus{Status: status, LastCheck: time.Now()}
}

// CurrentCursor implements adapter.CursorBootstrapper when CursorFunc is set.
func (f *FakeAdapter) CurrentCursor(ctx context.Context) (string, error) {
	if f.CursorFunc != nil {
		return f.CursorFunc(ctx)
	}
	return "", nil
}
