// Package assistant implements the conversation orchestrator.
//
// The assistant owns the conversation store and drives the exchange with the
// completion backend: append the user turn, request a completion, satisfy at
// most one capture_screen tool call, then commit the assistant turn, or roll
// the user turn back on any failure. Errors never escape Ask; they come back
// as the response string with a leading marker so callers can render them
// without separate error plumbing.
package assistant

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avelline/deskhand/internal/backend"
	"github.com/avelline/deskhand/internal/conversation"
	"github.com/avelline/deskhand/internal/window"
)

// ErrorMarker prefixes every user-visible error string returned by Ask.
const ErrorMarker = "❌ "

// toolAck is the opaque acknowledgement carried by the tool turn of a
// capture round trip.
const toolAck = "screenshot captured"

// Capturer provides the screen capture capability. A nil return means no
// capturable source exists; that is not an error at this boundary.
type Capturer interface {
	Capture() []byte
}

// Normalizer converts recorded audio into the transcription-friendly format,
// falling back to the original bytes on converter failure.
type Normalizer interface {
	Normalize(ctx context.Context, src []byte, contentType string) ([]byte, string)
}

// Assistant orchestrates a single shared conversation against one backend.
type Assistant struct {
	store      *conversation.Store
	backend    backend.Backend
	capturer   Capturer
	normalizer Normalizer
	window     window.Handle // may be nil when no windowing collaborator is attached

	systemPrompt   string
	requestTimeout time.Duration

	// mu serializes exchanges: at most one request may be between its user
	// append and its settle/rollback at any time.
	mu sync.Mutex
}

// Options configures an Assistant.
type Options struct {
	SystemPrompt   string
	RequestTimeout time.Duration
	Capturer       Capturer
	Normalizer     Normalizer
	Window         window.Handle
}

// New creates an assistant around the given backend with a fresh store.
func New(b backend.Backend, opts Options) *Assistant {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Assistant{
		store:          conversation.NewStore(),
		backend:        b,
		capturer:       opts.Capturer,
		normalizer:     opts.Normalizer,
		window:         opts.Window,
		systemPrompt:   opts.SystemPrompt,
		requestTimeout: timeout,
	}
}

// Ask runs one full exchange for the given prompt and returns the response
// text. Failures are returned in-band, prefixed with ErrorMarker, and leave
// the store exactly as it was before the call.
func (a *Assistant) Ask(ctx context.Context, prompt string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	logger := slog.With("backend", a.backend.Name())

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrorMarker + "Nothing to ask."
	}

	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	a.store.Append(conversation.Turn{Role: conversation.RoleUser, Content: prompt})

	msgs := backend.FromTurns(a.store.Snapshot())

	// The capture capability is only declared to backends that honor tool
	// declarations; the rest get a plain completion request.
	var tools []backend.Tool
	if a.backend.SupportsTools() {
		tools = []backend.Tool{backend.ScreenCaptureTool()}
	}

	completion, err := a.backend.Complete(ctx, a.systemPrompt, msgs, tools)
	if err != nil {
		a.store.RollbackLastUser()
		logger.Error("completion failed", "error", err, "kind", backend.KindOf(err))
		return ErrorMarker + err.Error()
	}

	if completion.ToolCall == nil {
		a.store.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: completion.Text})
		return completion.Text
	}

	text, err := a.resolveToolCall(ctx, msgs, completion)
	if err != nil {
		a.store.RollbackLastUser()
		logger.Error("tool round trip failed", "error", err, "tool", completion.ToolCall.Name)
		return ErrorMarker + err.Error()
	}

	// Only the original user text and the final assistant text persist; the
	// intermediate assistant/tool/image messages were request-scoped.
	a.store.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: text})
	return text
}

// resolveToolCall satisfies a capture_screen invocation and re-issues the
// request once with the capture attached.
func (a *Assistant) resolveToolCall(ctx context.Context, msgs []backend.Message, first *backend.Completion) (string, error) {
	call := first.ToolCall
	if call.Name != backend.ScreenCaptureToolName {
		return "", backend.Errorf(backend.KindProtocol, "the model requested an unknown capability %q", call.Name)
	}
	if a.capturer == nil {
		return "", backend.Errorf(backend.KindTransport, "Screen capture is not available.")
	}

	img := a.capturer.Capture()
	if len(img) == 0 {
		return "", backend.Errorf(backend.KindTransport, "Could not capture the screen.")
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)

	// Request-scoped continuation: the assistant message echoed verbatim, the
	// tool acknowledgement keyed by the invocation id, and a user message
	// carrying the capture. None of these reach the store.
	followUp := append(msgs,
		first.Message,
		backend.Message{
			Role:       "tool",
			Content:    backend.TextContent(toolAck),
			ToolCallID: call.ID,
		},
		backend.Message{
			Role: "user",
			Content: backend.PartsContent(
				backend.Part{Type: "text", Text: "Here is the current screen."},
				backend.Part{Type: "image_url", ImageURL: &backend.ImageURL{URL: dataURL}},
			),
		},
	)

	second, err := a.backend.Complete(ctx, a.systemPrompt, followUp, nil)
	if err != nil {
		return "", err
	}
	if second.ToolCall != nil {
		// One capability round trip per turn; a second invocation request is
		// a response we cannot use.
		return "", backend.Errorf(backend.KindProtocol, "No response from the model.")
	}
	return second.Text, nil
}

// Transcribe converts recorded audio into a text prompt: normalize through
// the transcoding pipeline, then submit to the backend's speech-to-text.
func (a *Assistant) Transcribe(ctx context.Context, audioBytes []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	payload, payloadType := audioBytes, contentType
	if a.normalizer != nil {
		payload, payloadType = a.normalizer.Normalize(ctx, audioBytes, contentType)
	}

	text, err := a.backend.Transcribe(ctx, payload, payloadType)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// History returns the persisted conversation turns.
func (a *Assistant) History() []conversation.Turn {
	return a.store.Snapshot()
}

// ToggleWindow flips the attached window's visibility. It is the callback
// the hotkey collaborator binds; without a window handle it is a no-op.
func (a *Assistant) ToggleWindow() {
	window.Toggle(a.window)
}
