package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelline/deskhand/internal/backend"
	"github.com/avelline/deskhand/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.OpenAIConfig{
		APIKey:             "test-key",
		BaseURL:            srv.URL,
		CompletionModel:    "gpt-4o-mini",
		TranscriptionModel: "gpt-4o-transcribe",
		Language:           "en",
	})
}

func TestSupportsTools(t *testing.T) {
	assert.True(t, New(config.OpenAIConfig{}).SupportsTools())
}

func TestComplete_NoKey(t *testing.T) {
	c := New(config.OpenAIConfig{BaseURL: "http://127.0.0.1:1"}) // never dialed
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "sys", nil, nil)
	require.Error(t, err)
	assert.True(t, backend.IsKind(err, backend.KindConfig))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestComplete_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		kind    backend.Kind
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
			_, _ = w.Write([]byte(`{"error":{"message":"server exploded"}}`))
		}, backend.KindTransport},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not-json"))
		}, backend.KindProtocol},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, backend.KindProtocol},
		{"empty_content", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
		}, backend.KindProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.Complete(context.Background(), "sys", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tc.kind, backend.KindOf(err))
		})
	}
}

func TestComplete_SurfacesAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})
	_, err := c.Complete(context.Background(), "sys", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestComplete_Text(t *testing.T) {
	var gotReq map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotReq))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" 4 "}}]}`))
	})

	msgs := []backend.Message{{Role: "user", Content: backend.TextContent("What's 2+2?")}}
	comp, err := c.Complete(context.Background(), "be brief", msgs, []backend.Tool{backend.ScreenCaptureTool()})
	require.NoError(t, err)
	assert.Equal(t, "4", comp.Text)
	assert.Nil(t, comp.ToolCall)

	// Request shape: system prompt first, then the turns, tools declared.
	assert.Equal(t, "gpt-4o-mini", gotReq["model"])
	reqMsgs := gotReq["messages"].([]any)
	require.Len(t, reqMsgs, 2)
	first := reqMsgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be brief", first["content"])
	tools := gotReq["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "capture_screen", fn["name"])
}

func TestComplete_ToolCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{
			"role":"assistant",
			"content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"capture_screen","arguments":"{}"}}]
		}}]}`))
	})

	comp, err := c.Complete(context.Background(), "sys", nil, []backend.Tool{backend.ScreenCaptureTool()})
	require.NoError(t, err)
	require.NotNil(t, comp.ToolCall)
	assert.Equal(t, "call_1", comp.ToolCall.ID)
	assert.Equal(t, "capture_screen", comp.ToolCall.Name)

	// The verbatim assistant message must survive for the re-issued request.
	assert.Equal(t, "assistant", comp.Message.Role)
	require.Len(t, comp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", comp.Message.ToolCalls[0].ID)
}

func TestComplete_EchoesToolMessagesOnWire(t *testing.T) {
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A text editor."}}]}`))
	})

	msgs := []backend.Message{
		{Role: "user", Content: backend.TextContent("What's on my screen?")},
		{Role: "assistant", ToolCalls: []backend.ToolCall{{ID: "call_1", Name: "capture_screen", Arguments: "{}"}}},
		{Role: "tool", Content: backend.TextContent("screenshot captured"), ToolCallID: "call_1"},
		{Role: "user", Content: backend.PartsContent(
			backend.Part{Type: "text", Text: "Here is the current screen."},
			backend.Part{Type: "image_url", ImageURL: &backend.ImageURL{URL: "data:image/png;base64,AAAA"}},
		)},
	}
	_, err := c.Complete(context.Background(), "sys", msgs, nil)
	require.NoError(t, err)

	var wire struct {
		Messages []struct {
			Role       string          `json:"role"`
			Content    json.RawMessage `json:"content"`
			ToolCallID string          `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &wire))
	require.Len(t, wire.Messages, 5) // system + the four above

	asst := wire.Messages[2]
	require.Len(t, asst.ToolCalls, 1)
	assert.Equal(t, "function", asst.ToolCalls[0].Type)
	assert.Equal(t, "capture_screen", asst.ToolCalls[0].Function.Name)

	tool := wire.Messages[3]
	assert.Equal(t, "tool", tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)

	user := wire.Messages[4]
	assert.Equal(t, "user", user.Role)
	assert.Contains(t, string(user.Content), "image_url")
}

func TestTranscribe_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "gpt-4o-transcribe", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "audio.webm", header.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte{1, 2, 3}, data)

		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	})

	text, err := c.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscribe_NoKey(t *testing.T) {
	c := New(config.OpenAIConfig{})
	_, err := c.Transcribe(context.Background(), []byte{1}, "audio/webm")
	require.Error(t, err)
	assert.True(t, backend.IsKind(err, backend.KindConfig))
}

func TestTranscribe_MissingTextField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	text, err := c.Transcribe(context.Background(), []byte{1}, "audio/wav")
	require.NoError(t, err)
	assert.Empty(t, text)
}
