package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// IMAPAdapter pulls messages from a generic IMAP mailbox. The incremental
// cursor is "UIDVALIDITY:lastUID"; when the mailbox UIDVALIDITY changes the
// cursor is expired and the orchestrator falls back to a windowed fetch.
type IMAPAdapter struct {
	cfg    *models.ChannelConfig
	client *imapclient.Client
}

// NewIMAPAdapter builds an IMAP adapter from the channel's decrypted
// configuration.
func NewIMAPAdapter(_ *models.Channel, cfg *models.ChannelConfig) (Adapter, error) {
	a := &IMAPAdapter{cfg: cfg}
	if err := a.ValidateConfiguration(); err != nil {
		return nil, err
	}
	return a, nil
}

// ValidateConfiguration checks the connection fields without dialing.
func (a *IMAPAdapter) ValidateConfiguration() error {
	if a.cfg == nil {
		return &ConfigError{Reason: "missing configuration"}
	}
	if a.cfg.Hostname == "" {
		return &ConfigError{Reason: "hostname is required"}
	}
	if a.cfg.Username == "" || a.cfg.Password == "" {
		return &ConfigError{Reason: "username and password are required"}
	}
	return nil
}

// Connect dials the server with a 5-second timeout and authenticates.
func (a *IMAPAdapter) Connect(_ context.Context) error {
	port := a.cfg.Port
	if port == 0 {
		if a.cfg.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}
	address := net.JoinHostPort(a.cfg.Hostname, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: 5 * time.Second}

	var c *imapclient.Client
	var err error
	if a.cfg.UseTLS {
		c, err = imapclient.DialWithDialerTLS(dialer, address, nil)
	} else {
		c, err = imapclient.DialWithDialer(dialer, address)
	}
	if err != nil {
		return &TransientError{Err: fmt.Errorf("failed to dial %s: %w", address, err)}
	}

	if err := c.Login(a.cfg.Username, a.cfg.Password); err != nil {
		_ = c.Logout()
		return &AuthError{Provider: "imap", Err: err}
	}

	a.client = c
	return nil
}

// Disconnect logs out and drops the session.
func (a *IMAPAdapter) Disconnect() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Logout()
	a.client = nil
	return err
}

// IsConnected reports whether the adapter holds a live session.
func (a *IMAPAdapter) IsConnected() bool {
	return a.client != nil && a.client.State() != imap.LogoutState
}

func (a *IMAPAdapter) mailbox() string {
	if a.cfg.Mailbox != "" {
		return a.cfg.Mailbox
	}
	return "INBOX"
}

// ReceiveMessages searches the mailbox for messages since the given time and
// fetches them in full.
func (a *IMAPAdapter) ReceiveMessages(_ context.Context, since *time.Time, limit int) ([]models.RawMessage, error) {
	if !a.IsConnected() {
		return nil, &ConfigError{Reason: "adapter is not connected"}
	}

	if _, err := a.client.Select(a.mailbox(), true); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to select %s: %w", a.mailbox(), err)}
	}

	criteria := imap.NewSearchCriteria()
	if since != nil {
		criteria.Since = *since
	}

	uids, err := a.client.UidSearch(criteria)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("search failed: %w", err)}
	}

	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	return a.fetchUIDs(uids)
}

// ReceiveMessagesViaHistory fetches everything above the cursor's last seen
// UID. A UIDVALIDITY change invalidates all stored UIDs, so the cursor is
// reported expired.
func (a *IMAPAdapter) ReceiveMessagesViaHistory(_ context.Context, cursor string) (*HistoryPage, error) {
	if !a.IsConnected() {
		return nil, &ConfigError{Reason: "adapter is not connected"}
	}

	uidValidity, lastUID, err := parseIMAPCursor(cursor)
	if err != nil {
		return nil, &CursorExpiredError{Cursor: cursor}
	}

	mbox, err := a.client.Select(a.mailbox(), true)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to select %s: %w", a.mailbox(), err)}
	}

	if mbox.UidValidity != uidValidity {
		return nil, &CursorExpiredError{Cursor: cursor}
	}

	page := &HistoryPage{NextCursor: formatIMAPCursor(mbox.UidValidity, lastUID)}

	if mbox.UidNext <= lastUID+1 {
		// Nothing new.
		return page, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, mbox.UidNext-1)

	uids, err := a.searchUIDRange(seqSet)
	if err != nil {
		return nil, err
	}

	messages, err := a.fetchUIDs(uids)
	if err != nil {
		return nil, err
	}

	newLast := lastUID
	for _, uid := range uids {
		if uid > newLast {
			newLast = uid
		}
	}

	page.Messages = messages
	page.NextCursor = formatIMAPCursor(mbox.UidValidity, newLast)
	return page, nil
}

// CurrentCursor reports the mailbox's current position as
// "UIDVALIDITY:lastUID", used to seed the incremental cursor after a full
// windowed sync.
func (a *IMAPAdapter) CurrentCursor(_ context.Context) (string, error) {
	if !a.IsConnected() {
		return "", &ConfigError{Reason: "adapter is not connected"}
	}
	mbox, err := a.client.Select(a.mailbox(), true)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to select %s: %w", a.mailbox(), err)}
	}
	lastUID := uint32(0)
	if mbox.UidNext > 0 {
		lastUID = mbox.UidNext - 1
	}
	return formatIMAPCursor(mbox.UidValidity, lastUID), nil
}

// GetHealthStatus does a timed NOOP.
func (a *IMAPAdapter) GetHealthStatus(_ context.Context) HealthStatus {
	status := HealthStatus{Status: models.HealthHealthy, LastCheck: time.Now()}

	if !a.IsConnected() {
		status.Status = models.HealthUnhealthy
		status.Errors = append(status.Errors, "not connected")
		return status
	}

	start := time.Now()
	err := a.client.Noop()
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = models.HealthUnhealthy
		status.Errors = append(status.Errors, err.Error())
	} else if status.Latency > 2*time.Second {
		status.Status = models.HealthDegraded
	}

	return status
}

func (a *IMAPAdapter) searchUIDRange(seqSet *imap.SeqSet) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := a.client.UidSearch(criteria)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("uid search failed: %w", err)}
	}
	return uids, nil
}

// fetchUIDs fetches full messages (envelope, flags and body) for the UIDs.
func (a *IMAPAdapter) fetchUIDs(uids []uint32) ([]models.RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- a.client.UidFetch(seqSet, items, messages)
	}()

	var raws []models.RawMessage
	for msg := range messages {
		raw := imapToRaw(msg, section)
		if raw != nil {
			raws = append(raws, *raw)
		}
	}

	if err := <-done; err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to fetch messages: %w", err)}
	}

	return raws, nil
}

// imapToRaw converts a fetched IMAP message to the provider-shaped envelope.
// The provider thread id is the root of the References chain, falling back to
// In-Reply-To and finally the message's own Message-ID.
func imapToRaw(msg *imap.Message, section *imap.BodySectionName) *models.RawMessage {
	if msg == nil {
		return nil
	}

	raw := &models.RawMessage{
		ProviderMessageID: strconv.FormatUint(uint64(msg.Uid), 10),
		InternalDate:      msg.InternalDate.UTC(),
		ProviderFlags:     msg.Flags,
		Headers:           make(map[string]string),
	}

	if msg.Envelope != nil {
		raw.Subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			raw.Date = msg.Envelope.Date.UTC()
		}
		if len(msg.Envelope.From) > 0 {
			raw.From = formatIMAPAddress(msg.Envelope.From[0])
		}
		raw.To = formatIMAPAddressList(msg.Envelope.To)
		raw.CC = formatIMAPAddressList(msg.Envelope.Cc)
		raw.BCC = formatIMAPAddressList(msg.Envelope.Bcc)
		raw.ReplyTo = formatIMAPAddressList(msg.Envelope.ReplyTo)
		if msg.Envelope.MessageId != "" {
			raw.Headers["Message-ID"] = msg.Envelope.MessageId
			raw.ProviderMessageID = msg.Envelope.MessageId
		}
		if msg.Envelope.InReplyTo != "" {
			raw.Headers["In-Reply-To"] = msg.Envelope.InReplyTo
		}
	}

	if body := msg.GetBody(section); body != nil {
		if envelope, err := enmime.ReadEnvelope(body); err == nil {
			raw.BodyText = envelope.Text
			raw.BodyHTML = envelope.HTML

			for _, key := range envelope.GetHeaderKeys() {
				raw.Headers[key] = envelope.GetHeader(key)
			}

			for _, part := range envelope.Attachments {
				raw.Attachments = append(raw.Attachments, models.RawAttachment{
					Filename:  part.FileName,
					MimeType:  part.ContentType,
					SizeBytes: int64(len(part.Content)),
				})
			}
			for _, part := range envelope.Inlines {
				if part.FileName == "" {
					continue
				}
				raw.Attachments = append(raw.Attachments, models.RawAttachment{
					Filename:  part.FileName,
					MimeType:  part.ContentType,
					SizeBytes: int64(len(part.Content)),
					IsInline:  true,
				})
			}
		}
	}

	raw.ProviderThreadID = imapThreadID(raw)
	return raw
}

// imapThreadID picks the conversation root: the first References entry, else
// In-Reply-To, else the message's own Message-ID.
func imapThreadID(raw *models.RawMessage) string {
	if refs := raw.Headers["References"]; refs != "" {
		if fields := strings.Fields(refs); len(fields) > 0 {
			return fields[0]
		}
	}
	if inReplyTo := raw.Headers["In-Reply-To"]; inReplyTo != "" {
		return inReplyTo
	}
	if messageID := raw.Headers["Message-ID"]; messageID != "" {
		return messageID
	}
	return raw.ProviderMessageID
}

func parseIMAPCursor(cursor string) (uidValidity, lastUID uint32, err error) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}

	validity, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}

	uid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}

	return uint32(validity), uint32(uid), nil
}

func formatIMAPCursor(uidValidity, lastUID uint32) string {
	return fmt.Sprintf("%d:%d", uidValidity, lastUID)
}

func formatIMAPAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}
	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}
	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}
	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

func formatIMAPAddressList(addresses []*imap.Address) []string {
	var result []string
	for _, address := range addresses {
		if formatted := formatIMAPAddress(address); formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}
