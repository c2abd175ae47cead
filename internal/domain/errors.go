package domain

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind uint8

const (
	FetchNetwork FetchErrorKind = iota
	FetchNotFound
	FetchTimeout
	FetchCacheIO
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchNetwork:
		return "network"
	case FetchNotFound:
		return "not_found"
	case FetchTimeout:
		return "timeout"
	case FetchCacheIO:
		return "cache_io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *FetchError of the same kind.
var (
	ErrNetwork  = errors.New("network error")
	ErrNotFound = errors.New("scan not found")
	ErrTimeout  = errors.New("request timed out")
	ErrCacheIO  = errors.New("cache i/o error")
)

// FetchError is returned by listing, fetching, and cache operations.
type FetchError struct {
	Kind FetchErrorKind
	Op   string
	// Key is the cache key or listing prefix the operation was working on.
	Key string
	// Attempts is the number of network attempts made, zero for cache errors.
	Attempts int
	// Retryable reports whether a later attempt could succeed.
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == FetchNetwork
	case ErrNotFound:
		return e.Kind == FetchNotFound
	case ErrTimeout:
		return e.Kind == FetchTimeout
	case ErrCacheIO:
		return e.Kind == FetchCacheIO
	}
	return false
}

// IsRetryable reports whether err is a FetchError marked retryable.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}
