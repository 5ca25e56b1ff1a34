package storage

import "errors"

// Common client storage errors
var (
	// ErrProfileNotFound indicates that the player has not logged in
	ErrProfileNotFound = errors.New("profile not found")

	// ErrPreferencesNotFound indicates that no view preferences were saved for a terminal
	ErrPreferencesNotFound = errors.New("view preferences not found")
)
