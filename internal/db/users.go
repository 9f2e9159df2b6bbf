package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

// GetOrCreateUser finds a user by email, creating one on first contact.
func GetOrCreateUser(ctx context.Context, pool *pgxpool.Pool, email string) (*models.User, error) {
	var u models.User
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id, email, created_at, updated_at
	`, email).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by id.
func GetUser(ctx context.Context, pool *pgxpool.Pool, id string) (*models.User, error) {
	var u models.User
	err := pool.QueryRow(ctx, `
		SELECT id, email, created_at, updated_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
