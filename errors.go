package cmsync

import "errors"

var (
	// ErrBuilderUsed is returned by a second call to [Builder.Build].
	ErrBuilderUsed = errors.New("builder already used")
	// ErrBaseURLRequired is returned when no backend URL is configured.
	ErrBaseURLRequired = errors.New("Gateway BaseURL is required")
	// ErrStorageConflict is returned when both a storage and a Redis client are supplied.
	ErrStorageConflict = errors.New("storage and redis client are mutually exclusive")
	// ErrClosed is returned by operations on a closed [Client].
	ErrClosed = errors.New("client closed")
)
