package storage

import "errors"

// Common storage errors
var (
	// ErrPlayerNotFound indicates that player is unknown to the world
	ErrPlayerNotFound = errors.New("player not found")

	// ErrContainerNotFound indicates that container was removed from the world
	ErrContainerNotFound = errors.New("container not found")

	// ErrInvalidAmount indicates a negative or zero amount was passed to a mutation
	ErrInvalidAmount = errors.New("invalid amount")
)
