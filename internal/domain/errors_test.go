package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError_Is(t *testing.T) {
	inner := &FetchError{Kind: FetchTimeout, Op: "download", Key: "k", Retryable: true, Err: errors.New("deadline")}
	outer := &FetchError{Kind: FetchNetwork, Op: "fetch", Key: "k", Attempts: 4, Err: inner}

	assert.ErrorIs(t, outer, ErrNetwork)
	assert.ErrorIs(t, outer, ErrTimeout, "inner kinds stay reachable through Unwrap")
	assert.NotErrorIs(t, outer, ErrNotFound)
	assert.False(t, IsRetryable(outer))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", inner)))
	assert.Contains(t, outer.Error(), "after 4 attempts")
	assert.Contains(t, outer.Error(), "deadline")
}

func TestFetchErrorKind_String(t *testing.T) {
	assert.Equal(t, "not_found", FetchNotFound.String())
	assert.Equal(t, "cache_io", FetchCacheIO.String())
}
