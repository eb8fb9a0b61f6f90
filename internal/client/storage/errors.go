package storage

import "errors"

// Common client storage errors
var (
	// ErrMutationNotFound indicates that queued mutation does not exist
	ErrMutationNotFound = errors.New("queued mutation not found")

	// ErrInvalidTransition indicates an illegal queue status transition
	ErrInvalidTransition = errors.New("invalid mutation status transition")

	// ErrSessionNotFound indicates that no bearer token is stored
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
