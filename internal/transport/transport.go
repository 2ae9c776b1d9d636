// Package transport defines the interface for inbound request transports.
//
// A transport carries prompts and audio in and response text out. It does not
// know anything about conversation state or backends; it only works with the
// Handler contract the daemon provides.
package transport

import (
	"context"

	"github.com/avelline/deskhand/internal/conversation"
)

// Handler is what a transport invokes for incoming requests.
type Handler interface {
	// Ask runs one conversational exchange. The returned string is always a
	// renderable response; errors arrive in-band with a marker prefix.
	Ask(ctx context.Context, prompt string) string

	// Transcribe converts recorded audio into text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)

	// History returns the persisted conversation turns.
	History() []conversation.Turn

	// ToggleWindow flips the assistant window's visibility.
	ToggleWindow()
}

// Transport is the interface every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting incoming requests and routes them to the
	// handler. It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
