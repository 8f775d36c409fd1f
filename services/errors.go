package services

import "errors"

// Error kinds surfaced to handlers. Handlers map these to HTTP statuses;
// everything else is a generic internal error. Link-graph failures are never
// surfaced; the bot recovers with its synthetic fallback.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid request")
)
