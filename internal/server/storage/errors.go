package storage

import "errors"

// Common storage errors
var (
	// ErrResourceNotFound indicates that resource was not found in storage
	ErrResourceNotFound = errors.New("resource not found")
)
