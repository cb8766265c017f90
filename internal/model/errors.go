package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user, project or config does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller is not a member of the
	// project. It wraps ErrNotFound so the two cannot be told apart.
	ErrUnauthorized = fmt.Errorf("%w: access denied", ErrNotFound)

	// ErrVersionConflict is returned when the caller's version token does not
	// match the stored one.
	ErrVersionConflict = errors.New("config version mismatch")

	// ErrAlreadyExists is returned when a unique user attribute (email,
	// username or auth token) is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCycleDetected is returned when a chain of linked configs loops.
	ErrCycleDetected = errors.New("linked config cycle detected")
)
