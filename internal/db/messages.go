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

const messageColumns = `
	id, channel_id, thread_id, provider_message_id, message_number,
	parent_message_id, sent_at, received_at, sender, to_addresses, cc_addresses,
	bcc_addresses, reply_to_addresses, body_text, body_html, snippet,
	attachment_count, reactions, metadata, flags, priority, status,
	content_hash, analysis, ai_status, ai_tokens_used, ai_cost_micro_usd,
	ai_error, primary_action_type, primary_action_color`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.ChannelID,
		&m.ThreadID,
		&m.ProviderMessageID,
		&m.MessageNumber,
		&m.ParentMessageID,
		&m.SentAt,
		&m.ReceivedAt,
		&m.Sender,
		&m.To,
		&m.CC,
		&m.BCC,
		&m.ReplyTo,
		&m.BodyText,
		&m.BodyHTML,
		&m.Snippet,
		&m.AttachmentCount,
		&m.Reactions,
		&m.Metadata,
		&m.Flags,
		&m.Priority,
		&m.Status,
		&m.ContentHash,
		&m.Analysis,
		&m.AIStatus,
		&m.AITokensUsed,
		&m.AICostMicroUSD,
		&m.AIError,
		&m.PrimaryActionType,
		&m.PrimaryActionColor,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return &m, nil
}

// InsertMessage inserts a message with its attachments and protocol header in
// one transaction. The unique (channel_id, provider_message_id) constraint is
// the dedup key; a conflicting insert fails rather than silently merging,
// because merges go through UpdateMessage.
func InsertMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.Message, attachments []models.Attachment, header *models.Header) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			channel_id, thread_id, provider_message_id, message_number,
			parent_message_id, sent_at, received_at, sender, to_addresses,
			cc_addresses, bcc_addresses, reply_to_addresses, body_text,
			body_html, snippet, raw_source, attachment_count, reactions,
			metadata, flags, priority, status, content_hash, ai_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24
		)
		RETURNING id
	`,
		msg.ChannelID,
		msg.ThreadID,
		msg.ProviderMessageID,
		msg.MessageNumber,
		msg.ParentMessageID,
		msg.SentAt,
		msg.ReceivedAt,
		msg.Sender,
		msg.To,
		msg.CC,
		msg.BCC,
		msg.ReplyTo,
		msg.BodyText,
		msg.BodyHTML,
		msg.Snippet,
		msg.RawSource,
		msg.AttachmentCount,
		msg.Reactions,
		msg.Metadata,
		msg.Flags,
		msg.Priority,
		msg.Status,
		msg.ContentHash,
		msg.AIStatus,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if header != nil {
		header.MessageID = msg.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO message_headers (
				message_id, message_id_header, in_reply_to, references_list,
				spf_result, dkim_result, auth_results, spam_score
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			header.MessageID,
			header.MessageIDHeader,
			header.InReplyTo,
			header.References,
			header.SPFResult,
			header.DKIMResult,
			header.AuthResults,
			header.SpamScore,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message header: %w", err)
		}
	}

	for i := range attachments {
		att := &attachments[i]
		att.MessageID = msg.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO attachments (
				message_id, provider_attachment_id, filename, mime_type,
				size_bytes, is_inline, content_hash, storage_location, scan_status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`,
			att.MessageID,
			att.ProviderAttachmentID,
			att.Filename,
			att.MimeType,
			att.SizeBytes,
			att.IsInline,
			att.ContentHash,
			att.StorageLocation,
			att.ScanStatus,
		).Scan(&att.ID)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message insert: %w", err)
	}
	return nil
}

// UpdateMessage writes back the mergeable fields of an existing message. The
// original sent timestamp and sender are never touched; body fields only fill
// in when previously empty.
func UpdateMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.Message) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET
			body_text = CASE WHEN body_text = '' THEN $2 ELSE body_text END,
			body_html = CASE WHEN body_html = '' THEN $3 ELSE body_html END,
			snippet = CASE WHEN snippet = '' THEN $4 ELSE snippet END,
			reactions = $5,
			metadata = $6,
			flags = $7,
			priority = $8,
			status = $9,
			content_hash = $10,
			ai_status = $11,
			ai_error = $12,
			updated_at = now()
		WHERE id = $1
	`,
		msg.ID,
		msg.BodyText,
		msg.BodyHTML,
		msg.Snippet,
		msg.Reactions,
		msg.Metadata,
		msg.Flags,
		msg.Priority,
		msg.Status,
		msg.ContentHash,
		msg.AIStatus,
		msg.AIError,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrMessageNotFound
	}
	return nil
}

// GetMessage returns a message by its database id.
func GetMessage(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// GetMessageByProviderID looks a message up by the dedup key.
func GetMessageByProviderID(ctx context.Context, pool *pgxpool.Pool, channelID, providerMessageID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND provider_message_id = $2
	`, channelID, providerMessageID)
	return scanMessage(row)
}

// ListThreadMessages returns all messages for a thread in ordinal order.
func ListThreadMessages(ctx context.Context, pool *pgxpool.Pool, threadID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id = $1
		ORDER BY message_number, sent_at, provider_message_id
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// UpdateMessageOrdinals writes recomputed message numbers for a thread.
func UpdateMessageOrdinals(ctx context.Context, pool *pgxpool.Pool, threadID string, assignments []engine.OrdinalAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, assignment := range assignments {
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET message_number = $3
			WHERE id = $1 AND thread_id = $2
		`, assignment.MessageID, threadID, assignment.MessageNumber); err != nil {
			return fmt.Errorf("failed to update ordinal: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ordinal updates: %w", err)
	}
	return nil
}

// GetAttachmentsForMessage returns all attachments for a message.
func GetAttachmentsForMessage(ctx context.Context, pool *pgxpool.Pool, messageID string) ([]*models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, message_id, provider_attachment_id, filename, mime_type,
		       size_bytes, is_inline, content_hash, storage_location, scan_status
		FROM attachments
		WHERE message_id = $1
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.ProviderAttachmentID,
			&att.Filename,
			&att.MimeType,
			&att.SizeBytes,
			&att.IsInline,
			&att.ContentHash,
			&att.StorageLocation,
			&att.ScanStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// SetMessageAnalysis stores the structured AI result with its token usage and
// cost, clearing any prior error.
func SetMessageAnalysis(ctx context.Context, pool *pgxpool.Pool, messageID string, analysis json.RawMessage, usage models.AnalysisUsage) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET
			analysis = $2,
			ai_tokens_used = $3,
			ai_cost_micro_usd = $4,
			ai_error = '',
			status = 'processed',
			updated_at = now()
		WHERE id = $1
	`, messageID, analysis, usage.TotalTokens, usage.CostMicroUSD)
	if err != nil {
		return fmt.Errorf("failed to set message analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrMessageNotFound
	}
	return nil
}

// SetMessageAIStatus transitions a message's AI status and records the error
// text, if any.
func SetMessageAIStatus(ctx context.Context, pool *pgxpool.Pool, messageID string, status models.AIStatus, aiError string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET ai_status = $2, ai_error = $3, updated_at = now()
		WHERE id = $1
	`, messageID, status, aiError)
	if err != nil {
		return fmt.Errorf("failed to set message AI status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrMessageNotFound
	}
	return nil
}

// SetMessagePrimaryAction writes the extractor's primary-action display
// fields.
func SetMessagePrimaryAction(ctx context.Context, pool *pgxpool.Pool, messageID, actionType, color string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET
			primary_action_type = $2,
			primary_action_color = $3,
			updated_at = now()
		WHERE id = $1
	`, messageID, actionType, color)
	if err != nil {
		return fmt.Errorf("failed to set primary action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrMessageNotFound
	}
	return nil
}
