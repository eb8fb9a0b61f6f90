package storage

import "context"

// SessionStorage defines interface for storing the bearer token
type SessionStorage interface {
	// SaveToken stores the bearer token
	SaveToken(ctx context.Context, token string) error

	// GetToken returns the stored token or ErrSessionNotFound
	GetToken(ctx context.Context) (string, error)

	// DeleteToken removes the stored token (logout)
	DeleteToken(ctx context.Context) error
}
