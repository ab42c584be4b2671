package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the connectors, the orchestrator and the HTTP layer.
// Callers wrap them with fmt.Errorf("%w ...") and check them with errors.Is.
var (
	// ErrUnknownProvider is returned when a provider name is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrConfiguration is returned when a connector's credentials are missing. It is an
	// operator problem, not a client one.
	ErrConfiguration = errors.New("provider not configured")
	// ErrInvalidArgument is returned when a caller-supplied value fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a connection does not exist or belongs to another user.
	ErrNotFound = errors.New("connection not found")
	// ErrNotActive is returned when sync or refresh runs before consent completed.
	ErrNotActive = errors.New("connection is not active")
	// ErrConsentRejected is returned when the user declined the consent. It matches
	// ErrNotActive, but the connection can only be replaced, not completed.
	ErrConsentRejected = fmt.Errorf("%w: consent was rejected", ErrNotActive)
	// ErrProviderFailure wraps upstream HTTP and decoding failures.
	ErrProviderFailure = errors.New("provider request failed")
	// ErrSyncInProgress is returned when another sync holds the connection lock.
	ErrSyncInProgress = errors.New("a sync is already running for this connection")
	// ErrRateLimited is returned when a user exceeds the manual sync quota.
	ErrRateLimited = errors.New("too many sync requests")
)
