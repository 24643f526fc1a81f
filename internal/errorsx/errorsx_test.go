package errorsx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUnwrapsWrappedError(t *testing.T) {
	base := New(TransientNetwork, "live", "connection reset", nil)
	wrapped := fmt.Errorf("fetch page: %w", base)
	require.True(t, Is(wrapped, TransientNetwork))
	require.False(t, Is(wrapped, RateLimited))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("boom"), InvalidInput))
}

func TestRetryableKinds(t *testing.T) {
	require.True(t, New(TransientNetwork, "live", "", nil).Retryable())
	require.True(t, New(RateLimited, "live", "", nil).Retryable())
	require.True(t, New(Timeout, "live", "", nil).Retryable())
	require.False(t, New(InvalidInput, "live", "", nil).Retryable())
	require.False(t, New(InternalInvariant, "fcp", "", nil).Retryable())
	require.False(t, New(SourceUnavailable, "archive", "", nil).Retryable())
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	e := New(TransientNetwork, "archive", "request failed", cause)
	require.Equal(t, cause, e.Unwrap())
	require.ErrorIs(t, e, cause)
}
