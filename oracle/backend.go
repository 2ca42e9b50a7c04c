package oracle

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned by a backend when its credentials were rejected or expired.
	ErrUnauthorized = errors.New("oracle: unauthorized")
	// ErrBackendUnavailable wraps any backend failure that survived the retry policy.
	ErrBackendUnavailable = errors.New("oracle: backend unavailable")
)

// Request is a single completion request.
type Request struct {
	System string
	Prompt string
	// Screenshot is a PNG. Backends without vision never receive one.
	Screenshot []byte
}

// Backend is a reasoning service that turns a prompt into free text.
type Backend interface {
	Name() string
	SupportsVision() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// Reauthenticator is implemented by backends that can exchange credentials again after an
// ErrUnauthorized.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}
