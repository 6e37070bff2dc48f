package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrUnavailable indicates the backing store could not be reached.
var ErrUnavailable = errors.New("repository: store unavailable")

// ErrConflict indicates a uniqueness constraint was violated.
var ErrConflict = errors.New("repository: conflict")
