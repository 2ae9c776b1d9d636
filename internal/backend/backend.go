// Package backend defines the interface to completion and transcription services.
//
// A backend turns a conversation history into response text and converts
// recorded audio into text. Deskhand ships with two implementations: OpenAI
// (cloud, supports tool calls) and Local (self-hosted via Ollama/whisper.cpp,
// no credential, no tool calls).
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avelline/deskhand/internal/conversation"
)

// Part is one element of structured message content.
// Type is either "text" or "image_url".
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, typically a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Content is message content in exactly one of two forms: plain text or a
// list of typed parts. Plain text marshals as a JSON string, parts as an
// array, matching the chat-completions wire format.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent wraps structured parts.
func PartsContent(parts ...Part) Content {
	return Content{Parts: parts}
}

// MarshalJSON emits a string for plain text and an array for parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either form.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor parts: %w", err)
	}
	c.Parts = parts
	c.Text = ""
	return nil
}

// ToolCall is a capability invocation requested by the model inside an
// assistant message. Arguments is the raw JSON payload, left opaque.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool declares a capability the model may invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ScreenCaptureToolName identifies the one capability deskhand exposes.
const ScreenCaptureToolName = "capture_screen"

// ScreenCaptureTool declares the screen capture capability.
func ScreenCaptureTool() Tool {
	return Tool{
		Name:        ScreenCaptureToolName,
		Description: "Capture the user's current screen as an image so you can answer questions about what is visible.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Message is one entry in a completion request. It covers the persisted
// user/assistant turns as well as the request-scoped tool and image-bearing
// messages of a capability round trip.
type Message struct {
	Role       string
	Content    Content
	ToolCalls  []ToolCall
	ToolCallID string
}

// Completion is the outcome of one completion call: either final text or a
// tool call. Message holds the assistant message exactly as returned so it
// can be echoed verbatim on a follow-up request.
type Completion struct {
	Text     string
	ToolCall *ToolCall
	Message  Message
}

// Backend abstracts a completion + transcription service.
type Backend interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// SupportsTools reports whether Complete honors tool declarations.
	// Callers must not declare tools to a backend that returns false.
	SupportsTools() bool

	// Complete sends the system prompt plus messages and returns the model's
	// reply. Backends without tool support ignore tools and never return a
	// tool call.
	Complete(ctx context.Context, system string, msgs []Message, tools []Tool) (*Completion, error)

	// Transcribe converts audio bytes to text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// FromTurns converts persisted conversation turns into request messages.
func FromTurns(turns []conversation.Turn) []Message {
	msgs := make([]Message, len(turns))
	for i, t := range turns {
		msgs[i] = Message{Role: string(t.Role), Content: TextContent(t.Content)}
	}
	return msgs
}
