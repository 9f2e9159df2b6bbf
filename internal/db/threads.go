package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

const threadColumns = `
	id, channel_id, provider_thread_id, subject, participants, last_message_at,
	message_count, flags, labels, analysis, ai_status`

func scanThread(row pgx.Row) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(
		&t.ID,
		&t.ChannelID,
		&t.ProviderThreadID,
		&t.Subject,
		&t.Participants,
		&t.LastMessageAt,
		&t.MessageCount,
		&t.Flags,
		&t.Labels,
		&t.Analysis,
		&t.AIStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan thread: %w", err)
	}
	return &t, nil
}

// CreateThread inserts a thread for its provider thread id. A concurrent
// insert of the same provider thread id resolves to the existing row.
func CreateThread(ctx context.Context, pool *pgxpool.Pool, thread *models.Thread) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO threads (channel_id, provider_thread_id, subject, ai_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, provider_thread_id) DO UPDATE SET
			subject = COALESCE(NULLIF(threads.subject, ''), EXCLUDED.subject)
		RETURNING id
	`, thread.ChannelID, thread.ProviderThreadID, thread.Subject, thread.AIStatus).Scan(&thread.ID)

	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// GetThread returns a thread by its database id.
func GetThread(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Thread, error) {
	row := pool.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, id)
	return scanThread(row)
}

// GetThreadByProviderID returns a thread by its provider thread id within a
// channel.
func GetThreadByProviderID(ctx context.Context, pool *pgxpool.Pool, channelID, providerThreadID string) (*models.Thread, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE channel_id = $1 AND provider_thread_id = $2
	`, channelID, providerThreadID)
	return scanThread(row)
}

// ListThreads returns threads for a channel ordered by recency.
func ListThreads(ctx context.Context, pool *pgxpool.Pool, channelID string, limit, offset int) ([]*models.Thread, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE channel_id = $1
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return threads, nil
}

// UpdateThreadAggregates writes the recomputed aggregate fields.
func UpdateThreadAggregates(ctx context.Context, pool *pgxpool.Pool, thread *models.Thread) error {
	tag, err := pool.Exec(ctx, `
		UPDATE threads SET
			subject = $2,
			participants = $3,
			last_message_at = $4,
			message_count = $5,
			flags = $6,
			labels = $7
		WHERE id = $1
	`,
		thread.ID,
		thread.Subject,
		thread.Participants,
		thread.LastMessageAt,
		thread.MessageCount,
		thread.Flags,
		thread.Labels,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrThreadNotFound
	}
	return nil
}

// SetThreadAnalysis stores the thread-level AI result and status.
func SetThreadAnalysis(ctx context.Context, pool *pgxpool.Pool, threadID string, analysis json.RawMessage, status models.AIStatus) error {
	tag, err := pool.Exec(ctx, `
		UPDATE threads SET
			analysis = COALESCE($2, analysis),
			ai_status = $3
		WHERE id = $1
	`, threadID, analysis, status)
	if err != nil {
		return fmt.Errorf("failed to set thread analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrThreadNotFound
	}
	return nil
}
