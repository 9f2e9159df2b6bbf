package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// CreateSyncLog opens a sync log row in the running state.
func CreateSyncLog(ctx context.Context, pool *pgxpool.Pool, log *models.SyncLog) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO sync_logs (channel_id, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, log.ChannelID, log.Status, log.StartedAt).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// UpdateSyncLog closes out a sync log with its final status and counters.
func UpdateSyncLog(ctx context.Context, pool *pgxpool.Pool, log *models.SyncLog) error {
	tag, err := pool.Exec(ctx, `
		UPDATE sync_logs SET
			status = $2,
			completed_at = $3,
			messages_fetched = $4,
			messages_processed = $5,
			messages_failed = $6,
			errors = $7
		WHERE id = $1
	`,
		log.ID,
		log.Status,
		log.CompletedAt,
		log.MessagesFetched,
		log.MessagesProcessed,
		log.MessagesFailed,
		log.Errors,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync log %s not found", log.ID)
	}
	return nil
}

// ListSyncLogs returns the most recent sync logs for a channel.
func ListSyncLogs(ctx context.Context, pool *pgxpool.Pool, channelID string, limit int) ([]*models.SyncLog, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, channel_id, status, started_at, completed_at,
		       messages_fetched, messages_processed, messages_failed, errors
		FROM sync_logs
		WHERE channel_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(
			&l.ID,
			&l.ChannelID,
			&l.Status,
			&l.StartedAt,
			&l.CompletedAt,
			&l.MessagesFetched,
			&l.MessagesProcessed,
			&l.MessagesFailed,
			&l.Errors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}
