package adapter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

const gmailUser = "me"

// GmailAdapter pulls messages from the Gmail REST API. Incremental sync uses
// the mailbox historyId as the opaque cursor; windowed sync uses a search
// query with an "after:" clause.
type GmailAdapter struct {
	cfg       *models.ChannelConfig
	service   *gmail.Service
	connected bool
}

// NewGmailAdapter builds a Gmail adapter from the channel's decrypted
// configuration.
func NewGmailAdapter(_ *models.Channel, cfg *models.ChannelConfig) (Adapter, error) {
	a := &GmailAdapter{cfg: cfg}
	if err := a.ValidateConfiguration(); err != nil {
		return nil, err
	}
	return a, nil
}

// ValidateConfiguration checks the OAuth fields without touching the network.
func (a *GmailAdapter) ValidateConfiguration() error {
	if a.cfg == nil {
		return &ConfigError{Reason: "missing configuration"}
	}
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return &ConfigError{Reason: "client_id and client_secret are required"}
	}
	if a.cfg.RefreshToken == "" && a.cfg.AccessToken == "" {
		return &ConfigError{Reason: "an access_token or refresh_token is required"}
	}
	return nil
}

// Connect builds the Gmail service and validates the credentials with a
// profile fetch.
func (a *GmailAdapter) Connect(ctx context.Context) error {
	oauthConfig := &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		AccessToken:  a.cfg.AccessToken,
		RefreshToken: a.cfg.RefreshToken,
	}
	if a.cfg.TokenExpiry != nil {
		token.Expiry = *a.cfg.TokenExpiry
	}

	service, err := gmail.NewService(ctx, option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("failed to create Gmail service: %v", err)}
	}

	if _, err := service.Users.GetProfile(gmailUser).Context(ctx).Do(); err != nil {
		return a.wrapError(err)
	}

	a.service = service
	a.connected = true
	return nil
}

// Disconnect drops the local session.
func (a *GmailAdapter) Disconnect() error {
	a.service = nil
	a.connected = false
	return nil
}

// IsConnected reports whether Connect succeeded.
func (a *GmailAdapter) IsConnected() bool {
	return a.connected && a.service != nil
}

// ReceiveMessages lists messages matching the time window and fetches each in
// full form.
func (a *GmailAdapter) ReceiveMessages(ctx context.Context, since *time.Time, limit int) ([]models.RawMessage, error) {
	if !a.IsConnected() {
		return nil, &ConfigError{Reason: "adapter is not connected"}
	}

	call := a.service.Users.Messages.List(gmailUser).Context(ctx)
	if since != nil {
		call = call.Q(fmt.Sprintf("after:%d", since.Unix()))
	}
	if limit > 0 && limit < 500 {
		call = call.MaxResults(int64(limit))
	}

	var raws []models.RawMessage
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, a.wrapError(err)
		}

		for _, ref := range resp.Messages {
			raw, err := a.fetchMessage(ctx, ref.Id)
			if err != nil {
				return nil, err
			}
			raws = append(raws, *raw)
			if limit > 0 && len(raws) >= limit {
				return raws, nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return raws, nil
		}
	}
}

// ReceiveMessagesViaHistory pulls message additions since the given historyId.
// Gmail answers 404 when the history record has aged out; that maps to
// CursorExpiredError so the orchestrator falls back to a windowed fetch.
func (a *GmailAdapter) ReceiveMessagesViaHistory(ctx context.Context, cursor string) (*HistoryPage, error) {
	if !a.IsConnected() {
		return nil, &ConfigError{Reason: "adapter is not connected"}
	}

	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, &CursorExpiredError{Cursor: cursor}
	}

	page := &HistoryPage{}
	seen := make(map[string]bool)
	pageToken := ""
	latestHistoryID := startHistoryID

	for {
		call := a.service.Users.History.List(gmailUser).
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			if isGoogleStatus(err, 404) {
				return nil, &CursorExpiredError{Cursor: cursor}
			}
			return nil, a.wrapError(err)
		}

		if resp.HistoryId > latestHistoryID {
			latestHistoryID = resp.HistoryId
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true

				raw, err := a.fetchMessage(ctx, added.Message.Id)
				if err != nil {
					// The message may have been deleted between the history
					// record and now; skip it rather than failing the pull.
					if isGoogleStatus(err, 404) {
						continue
					}
					return nil, err
				}
				page.Messages = append(page.Messages, *raw)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	page.NextCursor = strconv.FormatUint(latestHistoryID, 10)
	return page, nil
}

// CurrentCursor reports the mailbox's current historyId, used to seed the
// incremental cursor after a full windowed sync.
func (a *GmailAdapter) CurrentCursor(ctx context.Context) (string, error) {
	if !a.IsConnected() {
		return "", &ConfigError{Reason: "adapter is not connected"}
	}
	profile, err := a.service.Users.GetProfile(gmailUser).Context(ctx).Do()
	if err != nil {
		return "", a.wrapError(err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// GetHealthStatus does a timed profile fetch.
func (a *GmailAdapter) GetHealthStatus(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: models.HealthHealthy, LastCheck: time.Now()}

	if !a.IsConnected() {
		status.Status = models.HealthUnhealthy
		status.Errors = append(status.Errors, "not connected")
		return status
	}

	start := time.Now()
	_, err := a.service.Users.GetProfile(gmailUser).Context(ctx).Do()
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = models.HealthUnhealthy
		status.Errors = append(status.Errors, err.Error())
	} else if status.Latency > 5*time.Second {
		status.Status = models.HealthDegraded
	}

	return status
}

func (a *GmailAdapter) fetchMessage(ctx context.Context, id string) (*models.RawMessage, error) {
	msg, err := a.service.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, a.wrapError(err)
	}
	return gmailToRaw(msg), nil
}

// gmailToRaw converts an API message into the provider-shaped envelope the
// normalizer consumes. All header interpretation beyond addressing stays in
// the normalizer.
func gmailToRaw(msg *gmail.Message) *models.RawMessage {
	raw := &models.RawMessage{
		ProviderMessageID: msg.Id,
		ProviderThreadID:  msg.ThreadId,
		Snippet:           msg.Snippet,
		ProviderLabels:    msg.LabelIds,
		Headers:           make(map[string]string),
	}

	if msg.InternalDate > 0 {
		raw.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		raw.Headers[h.Name] = h.Value
		switch strings.ToLower(h.Name) {
		case "from":
			raw.From = h.Value
		case "to":
			raw.To = splitAddressList(h.Value)
		case "cc":
			raw.CC = splitAddressList(h.Value)
		case "bcc":
			raw.BCC = splitAddressList(h.Value)
		case "reply-to":
			raw.ReplyTo = splitAddressList(h.Value)
		case "subject":
			raw.Subject = h.Value
		case "date":
			if parsed, err := mail.ParseDate(h.Value); err == nil {
				raw.Date = parsed.UTC()
			}
		}
	}

	collectGmailParts(msg.Payload, raw)
	return raw
}

func collectGmailParts(part *gmail.MessagePart, raw *models.RawMessage) {
	if part == nil {
		return
	}

	if part.Filename != "" && part.Body != nil {
		att := models.RawAttachment{
			Filename:  part.Filename,
			MimeType:  part.MimeType,
			SizeBytes: part.Body.Size,
		}
		if part.Body.AttachmentId != "" {
			att.ProviderAttachmentID = part.Body.AttachmentId
		}
		for _, h := range part.Headers {
			if strings.EqualFold(h.Name, "Content-ID") {
				att.IsInline = true
			}
		}
		raw.Attachments = append(raw.Attachments, att)
	} else if part.Body != nil && part.Body.Data != "" {
		body := decodeGmailBody(part.Body.Data)
		switch part.MimeType {
		case "text/plain":
			if raw.BodyText == "" {
				raw.BodyText = body
			}
		case "text/html":
			if raw.BodyHTML == "" {
				raw.BodyHTML = body
			}
		}
	}

	for _, child := range part.Parts {
		collectGmailParts(child, raw)
	}
}

// decodeGmailBody decodes the API's URL-safe base64 payloads, which come both
// with and without padding.
func decodeGmailBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func splitAddressList(value string) []string {
	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		// Keep the raw value rather than dropping it.
		return []string{value}
	}
	addresses := make([]string, 0, len(parsed))
	for _, addr := range parsed {
		addresses = append(addresses, addr.String())
	}
	return addresses
}

// wrapError maps Gmail API failures onto the adapter error taxonomy. Token
// refresh failures never surface as *googleapi.Error: the oauth2 transport
// returns a *oauth2.RetrieveError (wrapped in a *url.Error), so a revoked or
// expired refresh token has to be recognized there.
func (a *GmailAdapter) wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &AuthError{Provider: "gmail", Err: err}
		case gerr.Code == 429 || gerr.Code >= 500:
			return &TransientError{Err: err}
		}
		return &TransientError{Err: err}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		// A token endpoint outage is retryable; a rejected grant is not.
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return &AuthError{Provider: "gmail", Err: err}
	}

	return &TransientError{Err: err}
}

func isGoogleStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
