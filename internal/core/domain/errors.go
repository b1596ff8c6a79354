package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Only ErrInvalidInput and context errors reach Retrieve callers;
// the rest stay inside adapters, classifiers and telemetry.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrChannelFailure    = errors.New("retrieval channel failure")
	ErrRerankFailure     = errors.New("rerank failure")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrNotConfigured     = errors.New("collaborator not configured")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
