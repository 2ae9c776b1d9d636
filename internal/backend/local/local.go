// Package local implements the backend using self-hosted models.
//
// It supports any Ollama-compatible chat endpoint for completion and any
// OpenAI-compatible transcription endpoint (whisper.cpp server,
// faster-whisper) for speech-to-text. No credential is required, and the
// local backend never produces a tool call.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"

	"github.com/avelline/deskhand/internal/backend"
	"github.com/avelline/deskhand/internal/config"
)

// Client uses self-hosted models for completion and transcription.
type Client struct {
	llmEndpoint     string
	llmModel        string
	whisperEndpoint string
	client          *http.Client
}

// New creates a new local backend from config.
func New(cfg config.LocalConfig) *Client {
	model := cfg.LLMModel
	if model == "" {
		model = "llama3"
	}
	return &Client{
		llmEndpoint:     cfg.LLMEndpoint,
		llmModel:        model,
		whisperEndpoint: cfg.WhisperEndpoint,
		client:          &http.Client{},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "local" }

// SupportsTools reports that the local backend takes no tool declarations.
func (c *Client) SupportsTools() bool { return false }

// Complete sends the conversation to the Ollama-compatible chat endpoint.
// Tools are ignored: the local backend never returns a tool call, so image
// parts in the history are flattened to their text before sending.
func (c *Client) Complete(ctx context.Context, system string, msgs []backend.Message, _ []backend.Tool) (*backend.Completion, error) {
	ollamaMsgs := make([]ollamaMessage, 0, len(msgs)+1)
	ollamaMsgs = append(ollamaMsgs, ollamaMessage{Role: "system", Content: system})
	for _, m := range msgs {
		ollamaMsgs = append(ollamaMsgs, ollamaMessage{Role: m.Role, Content: flatten(m.Content)})
	}

	reqBody, err := json.Marshal(ollamaRequest{
		Model:    c.llmModel,
		Messages: ollamaMsgs,
		Stream:   false,
	})
	if err != nil {
		return nil, backend.Errorf(backend.KindProtocol, "marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.llmEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, backend.Errorf(backend.KindTransport, "creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, backend.Errorf(backend.KindTransport,
			"local model error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chatResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, backend.Errorf(backend.KindProtocol, "decoding chat response: %w", err)
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return nil, backend.Errorf(backend.KindProtocol, "No response from the local model.")
	}

	return &backend.Completion{
		Text:    text,
		Message: backend.Message{Role: "assistant", Content: backend.TextContent(text)},
	}, nil
}

// Transcribe sends audio to the local whisper-compatible endpoint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+extFromContentType(contentType))
	if err != nil {
		return "", backend.Errorf(backend.KindProtocol, "creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", backend.Errorf(backend.KindProtocol, "writing audio: %w", err)
	}
	_ = writer.WriteField("model", "whisper-1")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.whisperEndpoint, body)
	if err != nil {
		return "", backend.Errorf(backend.KindTransport, "creating transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", backend.Errorf(backend.KindTransport,
			"Cannot reach the local transcription service at %s. Is it running? %v", c.whisperEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", backend.Errorf(backend.KindTransport,
			"transcription failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", backend.Errorf(backend.KindProtocol, "decoding transcription: %w", err)
	}

	slog.Debug("local transcription complete", "text_length", len(result.Text))
	return result.Text, nil
}

// Close is a no-op for the local backend.
func (c *Client) Close() error { return nil }

// unreachable phrases a connection failure as an instruction to start the
// local service rather than a raw dial error.
func (c *Client) unreachable(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
		return backend.Errorf(backend.KindTransport,
			"Cannot reach the local model at %s. Start it with `ollama serve` and try again.", c.llmEndpoint)
	}
	return backend.Errorf(backend.KindTransport, "Failed to reach the local model: %w", err)
}

// flatten reduces structured content to its text parts. Image parts have no
// local-model representation and are dropped.
func flatten(c backend.Content) string {
	if c.Parts == nil {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == "text" && p.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// --- Ollama wire types ---

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	default:
		return ".webm"
	}
}
