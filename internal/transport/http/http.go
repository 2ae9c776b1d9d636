// Package http implements the HTTP/WebSocket transport for deskhand.
//
// It exposes a REST surface for one-shot asks and audio transcription, a
// WebSocket session for voice-driven clients, and the swagger UI.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelline/deskhand/internal/conversation"
	"github.com/avelline/deskhand/internal/transport"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/avelline/deskhand/docs"
)

// maxAudioBytes bounds uploaded audio bodies.
const maxAudioBytes = 25 << 20

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port   int
	server *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// routes builds the request mux for the given handler.
func (t *Transport) routes(handler transport.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", func(w http.ResponseWriter, r *http.Request) {
		t.handleAsk(w, r, handler)
	})
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		t.handleTranscribe(w, r, handler)
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, historyResponse{Turns: handler.History()})
	})
	mux.HandleFunc("POST /window/toggle", func(w http.ResponseWriter, r *http.Request) {
		handler.ToggleWindow()
		w.WriteHeader(http.StatusNoContent)
	})

	// GET /ws runs a WebSocket session for voice clients (see ws.go).
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWS(w, r, handler)
	})

	// Swagger UI for the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

type askResponse struct {
	Text string `json:"text"`
}

type historyResponse struct {
	Turns []conversation.Turn `json:"turns"`
}

// handleAsk processes a POST /ask request.
//
// @Summary     Ask the assistant
// @Description Runs one conversational exchange. The response text carries any
// @Description error in-band with a leading marker, so the status is 200 either way.
// @Tags        assistant
// @Accept      json
// @Produce     json
// @Param       request  body      askRequest  true  "The user prompt"
// @Success     200  {object}  askResponse
// @Failure     400  {string}  string  "Invalid request body"
// @Router      /ask [post]
func (t *Transport) handleAsk(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	text := handler.Ask(r.Context(), req.Prompt)
	writeJSON(w, askResponse{Text: text})
}

// handleTranscribe processes a POST /transcribe request.
//
// @Summary     Transcribe recorded audio
// @Description Accepts a multipart upload (field "file") or raw audio bytes with an
// @Description audio Content-Type, and returns the transcribed text.
// @Tags        assistant
// @Accept      multipart/form-data
// @Accept      audio/webm
// @Accept      audio/wav
// @Produce     json
// @Success     200  {object}  askResponse
// @Failure     400  {string}  string  "No audio supplied"
// @Failure     502  {string}  string  "Transcription service failure"
// @Router      /transcribe [post]
func (t *Transport) handleTranscribe(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	audio, contentType, err := readAudio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	text, err := handler.Transcribe(r.Context(), audio, contentType)
	if err != nil {
		slog.Error("transcription failed", "error", err)
		http.Error(w, "transcription failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, askResponse{Text: text})
}

// readAudio extracts audio bytes from either a multipart "file" field or a
// raw request body.
func readAudio(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if f, header, err := r.FormFile("file"); err == nil {
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
		if err != nil {
			return nil, "", fmt.Errorf("reading upload: %w", err)
		}
		ct := header.Header.Get("Content-Type")
		if ct == "" {
			ct = "audio/webm"
		}
		return data, ct, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading audio: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("no audio supplied")
	}
	if contentType == "" {
		contentType = "audio/webm"
	}
	return data, contentType, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
