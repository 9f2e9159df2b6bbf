package adapter

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

func TestErrorClassification(t *testing.T) {
	auth := &AuthError{Provider: "gmail", Err: errors.New("token revoked")}
	cfg := &ConfigError{Reason: "hostname is required"}
	cursor := &CursorExpiredError{Cursor: "12345"}
	transient := &TransientError{Err: errors.New("rate limited")}

	assert.True(t, IsAuthError(auth))
	assert.False(t, IsAuthError(transient))

	assert.True(t, IsConfigError(cfg))
	assert.False(t, IsConfigError(auth))

	assert.True(t, IsCursorExpired(cursor))
	assert.False(t, IsCursorExpired(cfg))

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(cursor))
}

func TestErrorClassificationSeesWrappedErrors(t *testing.T) {
	wrapped := errors.Join(errors.New("sync failed"), &AuthError{Provider: "imap", Err: errors.New("bad password")})
	assert.True(t, IsAuthError(wrapped))

	assert.ErrorContains(t, &TransientError{Err: errors.New("timeout")}, "transient provider error")
	assert.ErrorContains(t, &CursorExpiredError{Cursor: "42:7"}, `"42:7"`)
}

func TestRegistrySelectsByChannelType(t *testing.T) {
	registry := NewRegistry()

	t.Run("builds imap adapter", func(t *testing.T) {
		a, err := registry.New(
			&models.Channel{Type: models.ChannelTypeIMAP},
			&models.ChannelConfig{Hostname: "mail.example.com", Username: "alice", Password: "secret"},
		)
		require.NoError(t, err)
		assert.IsType(t, &IMAPAdapter{}, a)
	})

	t.Run("builds gmail adapter", func(t *testing.T) {
		a, err := registry.New(
			&models.Channel{Type: models.ChannelTypeGmail},
			&models.ChannelConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		)
		require.NoError(t, err)
		assert.IsType(t, &GmailAdapter{}, a)
	})

	t.Run("rejects unsupported type", func(t *testing.T) {
		_, err := registry.New(&models.Channel{Type: "carrier-pigeon"}, &models.ChannelConfig{})
		assert.True(t, IsConfigError(err))
	})

	t.Run("rejects invalid configuration at construction", func(t *testing.T) {
		_, err := registry.New(&models.Channel{Type: models.ChannelTypeIMAP}, &models.ChannelConfig{Hostname: "mail.example.com"})
		assert.True(t, IsConfigError(err))

		_, err = registry.New(&models.Channel{Type: models.ChannelTypeGmail}, &models.ChannelConfig{ClientID: "id", ClientSecret: "secret"})
		assert.True(t, IsConfigError(err))
	})
}

func TestGmailWrapError(t *testing.T) {
	a := &GmailAdapter{}

	t.Run("api status codes", func(t *testing.T) {
		assert.True(t, IsAuthError(a.wrapError(&googleapi.Error{Code: 401})))
		assert.True(t, IsAuthError(a.wrapError(&googleapi.Error{Code: 403})))
		assert.True(t, IsTransient(a.wrapError(&googleapi.Error{Code: 429})))
		assert.True(t, IsTransient(a.wrapError(&googleapi.Error{Code: 503})))
	})

	t.Run("revoked refresh token is an auth error", func(t *testing.T) {
		// The oauth2 transport returns token refresh failures wrapped in the
		// request's *url.Error, never as a *googleapi.Error.
		refreshFailure := &url.Error{
			Op:  "Get",
			URL: "https://gmail.googleapis.com/gmail/v1/users/me/profile",
			Err: &oauth2.RetrieveError{
				Response:  &http.Response{StatusCode: http.StatusBadRequest},
				ErrorCode: "invalid_grant",
			},
		}
		wrapped := a.wrapError(refreshFailure)
		assert.True(t, IsAuthError(wrapped), "got %T: %v", wrapped, wrapped)
		assert.False(t, IsTransient(wrapped))
	})

	t.Run("token endpoint outage stays transient", func(t *testing.T) {
		outage := &url.Error{
			Op:  "Get",
			URL: "https://gmail.googleapis.com/gmail/v1/users/me/profile",
			Err: &oauth2.RetrieveError{
				Response: &http.Response{StatusCode: http.StatusServiceUnavailable},
			},
		}
		assert.True(t, IsTransient(a.wrapError(outage)))
	})

	t.Run("network errors stay transient", func(t *testing.T) {
		dialFailure := &url.Error{Op: "Get", URL: "https://gmail.googleapis.com", Err: errors.New("connection refused")}
		assert.True(t, IsTransient(a.wrapError(dialFailure)))
	})
}

func TestIMAPCursorRoundTrip(t *testing.T) {
	cursor := formatIMAPCursor(17, 4302)
	assert.Equal(t, "17:4302", cursor)

	validity, uid, err := parseIMAPCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), validity)
	assert.Equal(t, uint32(4302), uid)

	for _, bad := range []string{"", "17", "17:abc", "x:4302"} {
		_, _, err := parseIMAPCursor(bad)
		assert.Error(t, err, "cursor %q", bad)
	}
}

func TestIMAPThreadIDFallbackChain(t *testing.T) {
	raw := &models.RawMessage{
		ProviderMessageID: "uid-9",
		Headers: map[string]string{
			"References":  "<root@example.com> <mid@example.com>",
			"In-Reply-To": "<mid@example.com>",
			"Message-ID":  "<leaf@example.com>",
		},
	}
	assert.Equal(t, "<root@example.com>", imapThreadID(raw))

	delete(raw.Headers, "References")
	assert.Equal(t, "<mid@example.com>", imapThreadID(raw))

	delete(raw.Headers, "In-Reply-To")
	assert.Equal(t, "<leaf@example.com>", imapThreadID(raw))

	delete(raw.Headers, "Message-ID")
	assert.Equal(t, "uid-9", imapThreadID(raw))
}
