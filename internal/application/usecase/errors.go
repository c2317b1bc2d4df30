package usecase

import "errors"

var (
	// ErrInvalidRequest wraps request validation and conversion failures.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when the requested assessment or verdict does not exist.
	ErrNotFound = errors.New("not found")
)
