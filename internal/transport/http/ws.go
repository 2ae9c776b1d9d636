package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/avelline/deskhand/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon is a local companion process; browser clients connect from
	// file:// or app origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is a frame on the WebSocket session.
// Client → server: {type:"ask", prompt:"..."} as text, or a binary audio blob.
// Server → client: {type:"transcript"|"answer"|"error", text:"..."}.
type wsEvent struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt,omitempty"`
	Text   string `json:"text,omitempty"`
}

// handleWS upgrades the connection and runs a voice session: binary frames
// are transcribed and then asked; text frames are asked directly.
func (t *Transport) handleWS(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	logger := slog.With("session", session)
	logger.Info("websocket session started", "remote", r.RemoteAddr)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var ev wsEvent
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type != "ask" {
				writeEvent(conn, logger, wsEvent{Type: "error", Text: "expected {\"type\":\"ask\",\"prompt\":...}"})
				continue
			}
			answer := handler.Ask(r.Context(), ev.Prompt)
			writeEvent(conn, logger, wsEvent{Type: "answer", Text: answer})

		case websocket.BinaryMessage:
			t.handleVoiceFrame(r.Context(), conn, logger, handler, data)
		}
	}
}

// handleVoiceFrame transcribes one audio blob and feeds the transcript into
// the conversation, reporting both stages to the client.
func (t *Transport) handleVoiceFrame(ctx context.Context, conn *websocket.Conn, logger *slog.Logger, handler transport.Handler, audio []byte) {
	transcript, err := handler.Transcribe(ctx, audio, "audio/webm")
	if err != nil {
		logger.Error("websocket transcription failed", "error", err)
		writeEvent(conn, logger, wsEvent{Type: "error", Text: "transcription failed: " + err.Error()})
		return
	}
	writeEvent(conn, logger, wsEvent{Type: "transcript", Text: transcript})

	if transcript == "" {
		return
	}
	answer := handler.Ask(ctx, transcript)
	writeEvent(conn, logger, wsEvent{Type: "answer", Text: answer})
}

func writeEvent(conn *websocket.Conn, logger *slog.Logger, ev wsEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(ev); err != nil {
		logger.Warn("websocket write failed", "error", err)
	}
}
