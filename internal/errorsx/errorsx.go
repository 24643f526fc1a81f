// Package errorsx implements the seven-kind error taxonomy of the FCP
// engine as a single typed error, adapted from the teacher's
// provider-scoped error (internal/net/client/wrap.go's ProviderError):
// a discriminated type with Unwrap, a package-level Is(err, kind)
// predicate and a Retryable method, instead of one bespoke error type per
// kind.
package errorsx

import "fmt"

// Kind discriminates the taxonomy of §7.
type Kind string

const (
	// InvalidInput: bad window, unsupported interval for market type,
	// naive timestamps. Never retried.
	InvalidInput Kind = "invalid_input"
	// TransientNetwork: connection reset, DNS failure, 5xx. Retried with
	// exponential backoff within the retry budget.
	TransientNetwork Kind = "transient_network"
	// RateLimited: 429 or equivalent. Retried, honoring Retry-After.
	RateLimited Kind = "rate_limited"
	// Timeout: per-request or overall deadline exceeded.
	Timeout Kind = "timeout"
	// CacheCorruption: digest mismatch or unreadable entry.
	CacheCorruption Kind = "cache_corruption"
	// SourceUnavailable: archive has no file for a day, or live returns
	// empty. Not an error condition by itself; yields an empty sub-frame.
	SourceUnavailable Kind = "source_unavailable"
	// InternalInvariant: frame fails I1-I4 after merge. Must never be
	// silently swallowed.
	InternalInvariant Kind = "internal_invariant"
)

// Error is the single typed error used throughout the FCP engine.
type Error struct {
	Kind    Kind
	Source  string // which component raised it: "archive", "live", "cache", "router", "fcp"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Source, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Source, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, source, message string, cause error) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Err: cause}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Retryable reports whether the taxonomy kind is one the component that
// raised it should retry locally (TransientNetwork, RateLimited, and
// per-request Timeout); InvalidInput and InternalInvariant are never
// retried, and SourceUnavailable/CacheCorruption are handled by falling
// back rather than retrying the same request.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case TransientNetwork, RateLimited, Timeout:
		return true
	default:
		return false
	}
}
