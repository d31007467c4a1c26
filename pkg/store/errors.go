package store

import "errors"

var (
	// ErrNotFound is returned when a mutation targets an id the store does not hold.
	ErrNotFound = errors.New("store: entity not found")

	// ErrOffline is returned by remote-required operations when the session is
	// unauthenticated or the destination project is local-only.
	ErrOffline = errors.New("store: remote unavailable")
)
