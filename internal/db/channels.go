package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

const channelColumns = `
	id, user_id, type, external_id, display_name, encrypted_config, active,
	sync_state, sync_cursor, last_sync_at, next_sync_at, failure_count,
	health_status, created_at, updated_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(
		&ch.ID,
		&ch.UserID,
		&ch.Type,
		&ch.ExternalID,
		&ch.DisplayName,
		&ch.EncryptedConfig,
		&ch.Active,
		&ch.SyncState,
		&ch.SyncCursor,
		&ch.LastSyncAt,
		&ch.NextSyncAt,
		&ch.FailureCount,
		&ch.HealthStatus,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}
	return &ch, nil
}

// CreateChannel inserts a channel. One channel per (user, provider type).
func CreateChannel(ctx context.Context, pool *pgxpool.Pool, channel *models.Channel) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO channels (
			user_id, type, external_id, display_name, encrypted_config, active,
			sync_state, sync_cursor, failure_count, health_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		channel.UserID,
		channel.Type,
		channel.ExternalID,
		channel.DisplayName,
		channel.EncryptedConfig,
		channel.Active,
		channel.SyncState,
		channel.SyncCursor,
		channel.FailureCount,
		channel.HealthStatus,
	).Scan(&channel.ID, &channel.CreatedAt, &channel.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

// GetChannel returns a channel by id.
func GetChannel(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Channel, error) {
	row := pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	return scanChannel(row)
}

// ListChannels returns all channels for a user.
func ListChannels(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.Channel, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}
	return channels, nil
}

// ListDueChannels returns active channels whose next sync time has passed
// (or was never set) and that are not currently syncing.
func ListDueChannels(ctx context.Context, pool *pgxpool.Pool, now time.Time) ([]*models.Channel, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE active
		  AND sync_state <> 'syncing'
		  AND (next_sync_at IS NULL OR next_sync_at <= $1)
		ORDER BY next_sync_at NULLS FIRST
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due channels: %w", err)
	}
	return channels, nil
}

// UpdateChannel writes back the mutable channel fields.
func UpdateChannel(ctx context.Context, pool *pgxpool.Pool, channel *models.Channel) error {
	tag, err := pool.Exec(ctx, `
		UPDATE channels SET
			display_name = $2,
			encrypted_config = $3,
			active = $4,
			sync_state = $5,
			sync_cursor = $6,
			last_sync_at = $7,
			next_sync_at = $8,
			failure_count = $9,
			health_status = $10,
			updated_at = now()
		WHERE id = $1
	`,
		channel.ID,
		channel.DisplayName,
		channel.EncryptedConfig,
		channel.Active,
		channel.SyncState,
		channel.SyncCursor,
		channel.LastSyncAt,
		channel.NextSyncAt,
		channel.FailureCount,
		channel.HealthStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrChannelNotFound
	}
	return nil
}

// ClaimChannelSync atomically transitions a channel out of idle/error into
// syncing. Returns false when another run already holds the claim.
func ClaimChannelSync(ctx context.Context, pool *pgxpool.Pool, channelID string) (bool, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE channels
		SET sync_state = 'syncing', updated_at = now()
		WHERE id = $1 AND sync_state <> 'syncing'
	`, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to claim channel sync: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
