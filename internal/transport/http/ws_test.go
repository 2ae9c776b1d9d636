package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWS_Ask(t *testing.T) {
	h := &fakeHandler{askReply: "it is tuesday"}
	srv := newTestServer(t, h)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(wsEvent{Type: "ask", Prompt: "what day is it?"}))

	ev := readEvent(t, conn)
	assert.Equal(t, "answer", ev.Type)
	assert.Equal(t, "it is tuesday", ev.Text)
	assert.Equal(t, []string{"what day is it?"}, h.askPrompts)
}

func TestWS_UnknownTextFrame(t *testing.T) {
	h := &fakeHandler{}
	srv := newTestServer(t, h)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Empty(t, h.askPrompts)
}

func TestWS_VoiceFrame(t *testing.T) {
	h := &fakeHandler{transcript: "open the browser", askReply: "done"}
	srv := newTestServer(t, h)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("audio-blob")))

	ev := readEvent(t, conn)
	assert.Equal(t, "transcript", ev.Type)
	assert.Equal(t, "open the browser", ev.Text)

	ev = readEvent(t, conn)
	assert.Equal(t, "answer", ev.Type)
	assert.Equal(t, "done", ev.Text)

	assert.Equal(t, []byte("audio-blob"), h.audio)
	assert.Equal(t, "audio/webm", h.audioType)
	assert.Equal(t, []string{"open the browser"}, h.askPrompts)
}

func TestWS_EmptyTranscriptSkipsAsk(t *testing.T) {
	h := &fakeHandler{transcript: ""}
	srv := newTestServer(t, h)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("silence")))

	ev := readEvent(t, conn)
	assert.Equal(t, "transcript", ev.Type)
	assert.Empty(t, ev.Text)
	assert.Empty(t, h.askPrompts)
}

func TestWS_TranscriptionFailure(t *testing.T) {
	h := &fakeHandler{transcribeErr: assert.AnError}
	srv := newTestServer(t, h)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("bad-audio")))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Empty(t, h.askPrompts)
}
