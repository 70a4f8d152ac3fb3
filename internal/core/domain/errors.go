package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown connector type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrUnitNotFound indicates the sync unit is not configured.
	ErrUnitNotFound = errors.New("sync unit not found")

	// Sync error taxonomy.

	// ErrTransientFetch indicates a network or rate-limit failure while fetching a page.
	// Retried with backoff at the page level.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrMalformedItem indicates a fetched item cannot be materialized.
	// The item is skipped and the batch continues.
	ErrMalformedItem = errors.New("malformed item")

	// ErrTransaction indicates a batch commit failed and was rolled back.
	// No checkpoint is advanced for the batch.
	ErrTransaction = errors.New("transaction failed")

	// ErrConfiguration indicates a fatal configuration problem.
	// The run aborts immediately.
	ErrConfiguration = errors.New("configuration error")

	// State errors.

	// ErrInvalidTransition indicates a state transition is not legal from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrStaleCheckpoint indicates a checkpoint write would move the watermark backwards.
	ErrStaleCheckpoint = errors.New("stale checkpoint")

	// ErrInvalidCursor indicates a stored pagination cursor could not be used.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrDuplicateKey indicates an insert collided with an existing natural key.
	ErrDuplicateKey = errors.New("duplicate key")

	// Connector errors.

	// ErrAuthRequired indicates the connector requires authentication but none is configured.
	ErrAuthRequired = errors.New("authentication required")

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// IsTransient reports whether err should be retried at the page level.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFetch) || errors.Is(err, ErrRateLimited)
}
