// Package normalize maps provider-shaped raw messages onto the canonical
// message/attachment/header model. It is pure: no I/O, no persistence.
// Unknown provider fields are preserved in the metadata custom-headers bag
// rather than dropped.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

const snippetLength = 140

// knownHeaders are headers already represented by first-class message fields;
// everything else lands in the custom-headers bag.
var knownHeaders = map[string]bool{
	"from": true, "to": true, "cc": true, "bcc": true, "reply-to": true,
	"subject": true, "date": true, "message-id": true, "in-reply-to": true,
	"references": true, "received-spf": true, "authentication-results": true,
	"x-spam-score": true, "x-priority": true,
}

// Normalize converts one raw provider message into the canonical shape.
// It fails only on structurally malformed input (missing message or thread
// id); such messages are recorded in the sync log and skipped, never aborting
// the batch.
func Normalize(providerType models.ChannelType, raw models.RawMessage) (*models.NormalizedMessage, error) {
	if raw.ProviderMessageID == "" {
		return nil, fmt.Errorf("message has no provider message id")
	}
	if raw.ProviderThreadID == "" {
		return nil, fmt.Errorf("message %s has no provider thread id", raw.ProviderMessageID)
	}

	msg := models.Message{
		ProviderMessageID: raw.ProviderMessageID,
		Sender:            parseAddress(raw.From),
		To:                parseAddressList(raw.To),
		CC:                parseAddressList(raw.CC),
		BCC:               parseAddressList(raw.BCC),
		ReplyTo:           parseAddressList(raw.ReplyTo),
		BodyText:          raw.BodyText,
		BodyHTML:          raw.BodyHTML,
		Snippet:           raw.Snippet,
		RawSource:         raw.RawSource,
		AttachmentCount:   len(raw.Attachments),
		Status:            models.MessageStatusNew,
		AIStatus:          models.AIStatusPending,
		Priority:          models.PriorityNormal,
	}

	msg.SentAt = raw.Date
	if msg.SentAt.IsZero() {
		msg.SentAt = raw.InternalDate
	}
	msg.ReceivedAt = raw.InternalDate
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = msg.SentAt
	}

	if msg.Snippet == "" {
		msg.Snippet = makeSnippet(raw.BodyText)
	}

	msg.Metadata = models.MessageMetadata{
		Subject:       raw.Subject,
		Priority:      raw.Headers["X-Priority"],
		LabelIDs:      raw.ProviderLabels,
		CustomHeaders: customHeaders(raw.Headers),
	}

	switch providerType {
	case models.ChannelTypeGmail:
		msg.Flags = flagsFromGmailLabels(raw.ProviderLabels)
	case models.ChannelTypeIMAP:
		msg.Flags = flagsFromIMAPFlags(raw.ProviderFlags)
	default:
		msg.Flags = models.MessageFlags{Inbox: true, Unread: true}
	}

	if msg.Flags.Starred || headerPriorityHigh(raw.Headers["X-Priority"]) {
		msg.Priority = models.PriorityHigh
	}

	msg.ContentHash = ContentHash(raw.Subject, raw.BodyText, raw.BodyHTML)

	header := models.Header{
		MessageIDHeader: raw.Headers["Message-ID"],
		InReplyTo:       strings.TrimSpace(raw.Headers["In-Reply-To"]),
		SPFResult:       raw.Headers["Received-SPF"],
		AuthResults:     raw.Headers["Authentication-Results"],
	}
	if refs := raw.Headers["References"]; refs != "" {
		header.References = strings.Fields(refs)
	}
	if score := raw.Headers["X-Spam-Score"]; score != "" {
		if parsed, err := strconv.ParseFloat(score, 64); err == nil {
			header.SpamScore = parsed
		}
	}

	msg.ParentMessageID = header.InReplyTo

	attachments := make([]models.Attachment, 0, len(raw.Attachments))
	for _, rawAtt := range raw.Attachments {
		attachments = append(attachments, models.Attachment{
			ProviderAttachmentID: rawAtt.ProviderAttachmentID,
			Filename:             rawAtt.Filename,
			MimeType:             rawAtt.MimeType,
			SizeBytes:            rawAtt.SizeBytes,
			IsInline:             rawAtt.IsInline,
			ContentHash:          rawAtt.ContentHash,
			StorageLocation:      rawAtt.StorageLocation,
			ScanStatus:           models.ScanPending,
		})
	}

	return &models.NormalizedMessage{
		Message:          msg,
		Attachments:      attachments,
		Header:           header,
		ProviderThreadID: raw.ProviderThreadID,
	}, nil
}

// ContentHash fingerprints the message content; a change in hash is what
// re-triggers AI analysis, while flag-only updates do not.
func ContentHash(subject, bodyText, bodyHTML string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(bodyText))
	h.Write([]byte{0})
	h.Write([]byte(bodyHTML))
	return hex.EncodeToString(h.Sum(nil))
}

func flagsFromGmailLabels(labels []string) models.MessageFlags {
	flags := models.MessageFlags{}
	for _, label := range labels {
		switch label {
		case "UNREAD":
			flags.Unread = true
		case "STARRED":
			flags.Starred = true
		case "DRAFT":
			flags.Draft = true
		case "SPAM":
			flags.Spam = true
		case "TRASH":
			flags.Trash = true
		case "INBOX":
			flags.Inbox = true
		case "CHAT":
			flags.Chat = true
		}
	}
	return flags
}

func flagsFromIMAPFlags(imapFlags []string) models.MessageFlags {
	flags := models.MessageFlags{Inbox: true, Unread: true}
	for _, flag := range imapFlags {
		switch flag {
		case "\\Seen":
			flags.Unread = false
		case "\\Flagged":
			flags.Starred = true
		case "\\Draft":
			flags.Draft = true
		case "\\Deleted":
			flags.Trash = true
		case "\\Junk", "$Junk":
			flags.Spam = true
			flags.Inbox = false
		}
	}
	return flags
}

func customHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	custom := make(map[string]string)
	for name, value := range headers {
		if knownHeaders[strings.ToLower(name)] {
			continue
		}
		custom[name] = value
	}
	if len(custom) == 0 {
		return nil
	}
	return custom
}

func parseAddress(value string) models.Address {
	if value == "" {
		return models.Address{}
	}
	parsed, err := mail.ParseAddress(value)
	if err != nil {
		return models.Address{Address: value, Raw: value}
	}
	return models.Address{Address: parsed.Address, Name: parsed.Name, Raw: value}
}

func parseAddressList(values []string) []models.Address {
	if len(values) == 0 {
		return nil
	}
	addresses := make([]models.Address, 0, len(values))
	for _, value := range values {
		addresses = append(addresses, parseAddress(value))
	}
	return addresses
}

func headerPriorityHigh(priority string) bool {
	// X-Priority: 1 (Highest) or 2 (High).
	trimmed := strings.TrimSpace(priority)
	return strings.HasPrefix(trimmed, "1") || strings.HasPrefix(trimmed, "2")
}

func makeSnippet(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= snippetLength {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:snippetLength])
}
