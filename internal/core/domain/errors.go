package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable marks a failed lexical or semantic index call.
	// Fatal for the query; never masked as a no-evidence answer.
	ErrIndexUnavailable = errors.New("search index unavailable")
	// ErrChunkNotFound is the chunk store's miss result. Expected during
	// expansion probing; any other store failure is corruption.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrMalformedAnswer marks generator output that does not satisfy the
	// structured contract.
	ErrMalformedAnswer = errors.New("malformed generator output")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTemporary       = errors.New("temporary failure")
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
