package models

import "errors"

// Error taxonomy for the sync core. Callers classify with errors.Is.
var (
	// ErrStorageQuotaExceeded means local durable storage is full. Fatal to
	// the current write; surfaced to the user, never retried automatically.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")

	// ErrValidationRejected means the server refused the update (HTTP 4xx).
	// Terminal per entry; requires manual resolution.
	ErrValidationRejected = errors.New("update rejected by server")

	// ErrTransientNetwork covers HTTP 5xx, timeouts and connectivity loss.
	// Retried with bounded exponential backoff.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrVersionActivation means a new asset bundle failed to fully cache.
	// The previous cache version keeps serving.
	ErrVersionActivation = errors.New("cache version activation failed")
)
