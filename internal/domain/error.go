package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstream marks a failure of the external metadata source. Callers
	// degrade (skip a channel or a query) instead of aborting the whole run.
	ErrUpstream = errors.New("upstream source error")

	// ErrQuotaExceeded is returned once the daily external-call budget is spent.
	ErrQuotaExceeded = errors.New("external api quota exceeded")

	ErrRunTerminal = errors.New("analysis run already in a terminal state")

	ErrJobNotRetryable    = errors.New("job is not in a retryable state")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
