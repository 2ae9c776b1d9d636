// Package openai implements the cloud backend using OpenAI's APIs.
//
// It uses the Chat Completions API for conversation (including the
// capture_screen tool round trip) and the Audio Transcription API
// (Whisper / gpt-4o-transcribe) for speech-to-text.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/avelline/deskhand/internal/backend"
	"github.com/avelline/deskhand/internal/config"
)

// Client uses OpenAI APIs for completion and transcription.
type Client struct {
	apiKey             string
	baseURL            string
	completionModel    string
	transcriptionModel string
	language           string
	client             *http.Client
}

// New creates a new OpenAI backend from config.
func New(cfg config.OpenAIConfig) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Client{
		apiKey:             cfg.APIKey,
		baseURL:            base,
		completionModel:    cfg.CompletionModel,
		transcriptionModel: cfg.TranscriptionModel,
		language:           cfg.Language,
		client:             &http.Client{},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "openai" }

// SupportsTools reports that the Chat Completions API accepts tool declarations.
func (c *Client) SupportsTools() bool { return true }

// Complete sends the conversation to the Chat Completions API.
// An absent API key fails immediately without a network call.
func (c *Client) Complete(ctx context.Context, system string, msgs []backend.Message, tools []backend.Tool) (*backend.Completion, error) {
	if c.apiKey == "" {
		return nil, backend.Errorf(backend.KindConfig,
			"Set OPENAI_API_KEY in your environment to use OpenAI.")
	}

	wireMsgs := make([]chatMessage, 0, len(msgs)+1)
	wireMsgs = append(wireMsgs, chatMessage{Role: "system", Content: backend.TextContent(system)})
	for _, m := range msgs {
		wireMsgs = append(wireMsgs, toWire(m))
	}

	reqBody := chatRequest{
		Model:    c.completionModel,
		Messages: wireMsgs,
		Tools:    toWireTools(tools),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, backend.Errorf(backend.KindProtocol, "marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, backend.Errorf(backend.KindTransport, "creating chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, backend.Errorf(backend.KindTransport, "Failed to reach OpenAI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.Errorf(backend.KindTransport, "OpenAI error: %s", apiErrorMessage(resp))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, backend.Errorf(backend.KindProtocol, "decoding chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, backend.Errorf(backend.KindProtocol, "No response from OpenAI.")
	}

	msg := chatResp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		tc := backend.ToolCall{
			ID:        msg.ToolCalls[0].ID,
			Name:      msg.ToolCalls[0].Function.Name,
			Arguments: msg.ToolCalls[0].Function.Arguments,
		}
		slog.Debug("completion requested tool call", "tool", tc.Name, "id", tc.ID)
		return &backend.Completion{ToolCall: &tc, Message: fromWire(msg)}, nil
	}

	text := strings.TrimSpace(msg.Content.Text)
	if text == "" {
		return nil, backend.Errorf(backend.KindProtocol, "No response from OpenAI.")
	}
	return &backend.Completion{Text: text, Message: fromWire(msg)}, nil
}

// Transcribe sends audio to the OpenAI Transcription API as a multipart upload.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if c.apiKey == "" {
		return "", backend.Errorf(backend.KindConfig,
			"Set OPENAI_API_KEY in your environment to use OpenAI.")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+extFromContentType(contentType))
	if err != nil {
		return "", backend.Errorf(backend.KindProtocol, "creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", backend.Errorf(backend.KindProtocol, "writing audio: %w", err)
	}
	_ = writer.WriteField("model", c.transcriptionModel)
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", backend.Errorf(backend.KindTransport, "creating transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", backend.Errorf(backend.KindTransport, "Failed to reach OpenAI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", backend.Errorf(backend.KindTransport, "transcription failed: %s", apiErrorMessage(resp))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", backend.Errorf(backend.KindProtocol, "decoding transcription: %w", err)
	}

	slog.Debug("transcription complete", "text_length", len(result.Text))
	return result.Text, nil
}

// Close is a no-op for the OpenAI backend.
func (c *Client) Close() error { return nil }

// --- Internal types and helpers ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    backend.Content `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func toWire(m backend.Message) chatMessage {
	out := chatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireFunction{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromWire(m chatMessage) backend.Message {
	out := backend.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, backend.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func toWireTools(tools []backend.Tool) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// apiErrorMessage extracts the API's error.message from a non-2xx response,
// falling back to the raw body.
func apiErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return ".m4a"
	default:
		return ".webm"
	}
}
