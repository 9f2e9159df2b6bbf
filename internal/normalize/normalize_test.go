package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

func gmailRaw() models.RawMessage {
	return models.RawMessage{
		ProviderMessageID: "msg-1",
		ProviderThreadID:  "thread-1",
		From:              "Alice Smith <alice@example.com>",
		To:                []string{"bob@example.com"},
		Subject:           "Quarterly report",
		Date:              time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		InternalDate:      time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC),
		BodyText:          "Please review the attached report before Friday.",
		ProviderLabels:    []string{"INBOX", "UNREAD"},
		Headers: map[string]string{
			"Message-ID":       "<msg-1@example.com>",
			"X-Custom-Tracker": "campaign-42",
		},
	}
}

func TestNormalizeGmail(t *testing.T) {
	nm, err := Normalize(models.ChannelTypeGmail, gmailRaw())
	require.NoError(t, err)

	assert.Equal(t, "msg-1", nm.Message.ProviderMessageID)
	assert.Equal(t, "thread-1", nm.ProviderThreadID)
	assert.Equal(t, "alice@example.com", nm.Message.Sender.Address)
	assert.Equal(t, "Alice Smith", nm.Message.Sender.Name)
	assert.Equal(t, "Quarterly report", nm.Message.Metadata.Subject)
	assert.True(t, nm.Message.Flags.Inbox)
	assert.True(t, nm.Message.Flags.Unread)
	assert.False(t, nm.Message.Flags.Starred)
	assert.Equal(t, models.MessageStatusNew, nm.Message.Status)
	assert.Equal(t, models.AIStatusPending, nm.Message.AIStatus)
	assert.NotEmpty(t, nm.Message.ContentHash)
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	t.Run("missing message id", func(t *testing.T) {
		raw := gmailRaw()
		raw.ProviderMessageID = ""
		_, err := Normalize(models.ChannelTypeGmail, raw)
		assert.Error(t, err)
	})

	t.Run("missing thread id", func(t *testing.T) {
		raw := gmailRaw()
		raw.ProviderThreadID = ""
		_, err := Normalize(models.ChannelTypeGmail, raw)
		assert.Error(t, err)
	})
}

func TestNormalizePreservesCustomHeaders(t *testing.T) {
	nm, err := Normalize(models.ChannelTypeGmail, gmailRaw())
	require.NoError(t, err)

	assert.Equal(t, "campaign-42", nm.Message.Metadata.CustomHeaders["X-Custom-Tracker"])
	// Headers with first-class fields stay out of the custom bag.
	assert.NotContains(t, nm.Message.Metadata.CustomHeaders, "Message-ID")
}

func TestNormalizeIMAPFlags(t *testing.T) {
	raw := gmailRaw()
	raw.ProviderFlags = []string{"\\Seen", "\\Flagged"}

	nm, err := Normalize(models.ChannelTypeIMAP, raw)
	require.NoError(t, err)

	assert.False(t, nm.Message.Flags.Unread, "\\Seen clears unread")
	assert.True(t, nm.Message.Flags.Starred)
	assert.True(t, nm.Message.Flags.Inbox)
	assert.Equal(t, models.PriorityHigh, nm.Message.Priority, "starred messages rank high")
}

func TestNormalizeThreadingHeaders(t *testing.T) {
	raw := gmailRaw()
	raw.Headers["In-Reply-To"] = "<parent@example.com>"
	raw.Headers["References"] = "<root@example.com> <parent@example.com>"

	nm, err := Normalize(models.ChannelTypeGmail, raw)
	require.NoError(t, err)

	assert.Equal(t, "<parent@example.com>", nm.Header.InReplyTo)
	assert.Equal(t, []string{"<root@example.com>", "<parent@example.com>"}, nm.Header.References)
	assert.Equal(t, "<parent@example.com>", nm.Message.ParentMessageID)
}

func TestNormalizeSnippet(t *testing.T) {
	raw := gmailRaw()
	raw.BodyText = "line one\n\n   line   two\nline three"

	nm, err := Normalize(models.ChannelTypeGmail, raw)
	require.NoError(t, err)
	assert.Equal(t, "line one line two line three", nm.Message.Snippet)
}

func TestContentHash(t *testing.T) {
	a := ContentHash("subject", "body", "")
	assert.Equal(t, a, ContentHash("subject", "body", ""))
	assert.NotEqual(t, a, ContentHash("subject", "other body", ""))
	// The separator keeps field boundaries unambiguous.
	assert.NotEqual(t, ContentHash("ab", "c", ""), ContentHash("a", "bc", ""))
}

func TestNormalizeFallbackDates(t *testing.T) {
	raw := gmailRaw()
	raw.Date = time.Time{}

	nm, err := Normalize(models.ChannelTypeGmail, raw)
	require.NoError(t, err)
	assert.Equal(t, raw.InternalDate, nm.Message.SentAt, "missing Date falls back to internal date")
}

func TestNormalizeAttachments(t *testing.T) {
	raw := gmailRaw()
	raw.Attachments = []models.RawAttachment{
		{ProviderAttachmentID: "att-1", Filename: "report.pdf", MimeType: "application/pdf", SizeBytes: 1024},
	}

	nm, err := Normalize(models.ChannelTypeGmail, raw)
	require.NoError(t, err)
	require.Len(t, nm.Attachments, 1)
	assert.Equal(t, "report.pdf", nm.Attachments[0].Filename)
	assert.Equal(t, models.ScanPending, nm.Attachments[0].ScanStatus)
	assert.Equal(t, 1, nm.Message.AttachmentCount)
}
