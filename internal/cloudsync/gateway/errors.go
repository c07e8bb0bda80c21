package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the sync engine.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, gateway.ErrConsistency) {
//	    // local and remote trees have diverged
//	}
var (
	// ErrTokenReset is returned by a backend when a continuation token is no
	// longer valid. The affected token is cleared and the feed restarts.
	ErrTokenReset = errors.New("change token expired")

	// ErrNotFound is returned when a record expected to exist was not returned.
	ErrNotFound = errors.New("no records received")

	// ErrConsistency is returned when a fetched record does not map back to
	// any expected in-memory item.
	ErrConsistency = errors.New("consistency error")

	// ErrMapping is returned when an item cannot be viewed as the requested kind.
	ErrMapping = errors.New("unable to map item")

	// ErrNoRootRecord is returned when share metadata carries no root record id.
	ErrNoRootRecord = errors.New("no root record id for share")

	// ErrUnknownKind is returned when an item kind was never registered.
	ErrUnknownKind = errors.New("unknown item kind")
)

// Classification is how the engine reacts to a backend failure.
type Classification int

const (
	// ClassFatal failures are propagated to the caller.
	ClassFatal Classification = iota
	// ClassRetry failures are resubmitted after a backoff, invisibly to the caller.
	ClassRetry
	// ClassTokenReset failures clear the affected continuation token.
	ClassTokenReset
)

// String returns a human-readable representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRetry:
		return "retry"
	case ClassTokenReset:
		return "token_reset"
	default:
		return "unknown"
	}
}

// RetryError marks a transient backend condition. The operation should be
// resubmitted unchanged once After has elapsed.
type RetryError struct {
	After time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry after %v", e.After)
	}
	return fmt.Sprintf("retry after %v: %v", e.After, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter wraps err as a transient failure with the given backoff.
func RetryAfter(d time.Duration, err error) error {
	return &RetryError{After: d, Err: err}
}

// Classify maps an error onto the engine's failure taxonomy. For Retry the
// backoff duration carried by the error is returned as well.
func Classify(err error) (Classification, time.Duration) {
	if err == nil {
		return ClassFatal, 0
	}

	var retry *RetryError
	if errors.As(err, &retry) {
		return ClassRetry, retry.After
	}

	if errors.Is(err, ErrTokenReset) {
		return ClassTokenReset, 0
	}

	return ClassFatal, 0
}

// IsRetryable returns true if the error will be resubmitted transparently.
func IsRetryable(err error) bool {
	c, _ := Classify(err)
	return err != nil && c == ClassRetry
}

// IsTokenReset returns true if the error invalidates a continuation token.
func IsTokenReset(err error) bool {
	c, _ := Classify(err)
	return err != nil && c == ClassTokenReset
}
