package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey string

// UserEmailKey is the context key used to store the authenticated user's email.
const UserEmailKey contextKey = "user_email"

// RequireAuth middleware checks for a valid bearer token in the Authorization header.
// It extracts the token, validates it, and stores the user's email in the request context
// for use by downstream handlers. Returns 401 Unauthorized if authentication fails.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")

		if authHeader == "" {
			log.Debug().Msg("auth: no Authorization header present")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Parse Authorization header: "Bearer <token>" (RFC 7235).
		// The Bearer scheme is case-insensitive.
		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
			log.Debug().Msg("auth: invalid Authorization header format")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.Join(fields[1:], " "))
		if token == "" {
			log.Debug().Msg("auth: empty token after Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userEmail, err := ValidateToken(token)
		if err != nil {
			log.Debug().Err(err).Msg("auth: token validation failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserEmailKey, userEmail)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserEmailFromContext returns the user email from the context.
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok
}

// ValidateToken validates the token and returns the user's email.
// This is a stub for now.
// In test mode (AIHUB_TEST_MODE=true), if the token starts with "email:",
// it extracts the email from the token (e.g., "email:user@example.com" -> "user@example.com").
// Otherwise, it returns "test@example.com" as the default test user.
func ValidateToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(token) == "email:" {
		return "", fmt.Errorf("token is empty")
	}

	// In test mode, support extracting email from token format "email:user@example.com"
	if os.Getenv("AIHUB_TEST_MODE") == "true" {
		if strings.HasPrefix(token, "email:") {
			email := strings.TrimPrefix(token, "email:")
			if email != "" {
				return email, nil
			}
		}
	}

	// TODO: Implement token validation

	return "test@example.com", nil
}
