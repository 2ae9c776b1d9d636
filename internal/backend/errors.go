package backend

import (
	"errors"
	"fmt"
)

// Kind classifies backend failures so the orchestrator can phrase them for
// the user without inspecting message text.
type Kind string

const (
	// KindConfig is a missing or unusable credential; not retryable without
	// user action.
	KindConfig Kind = "config"

	// KindTransport is an unreachable service, a non-2xx status, or a timeout.
	KindTransport Kind = "transport"

	// KindProtocol is a malformed or empty response body.
	KindProtocol Kind = "protocol"

	// KindMedia is a local media-processing failure; recovered by fallback,
	// never shown to the user on its own.
	KindMedia Kind = "media"
)

// Error is a classified backend failure.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.err }

// Errorf builds a classified error. A trailing %w wraps a cause as usual.
func Errorf(kind Kind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, msg: wrapped.Error(), err: errors.Unwrap(wrapped)}
}

// KindOf returns the kind of err, defaulting to transport for unclassified
// failures (the safest user-facing interpretation of an unknown fault).
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
