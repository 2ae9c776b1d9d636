// Package audio normalizes recorded audio before transcription.
//
// Recorded blobs arrive as compressed WebM/Opus; the transcoder shells out
// to ffmpeg to produce mono 16 kHz signed 16-bit WAV, the format speech
// recognition services handle best. A missing or failing converter degrades
// gracefully: the original bytes are returned unchanged and submitted as-is.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WAVContentType is the MIME type of a successfully normalized blob.
const WAVContentType = "audio/wav"

// Transcoder converts audio blobs to normalized WAV via an external ffmpeg
// process. The zero value is not usable; construct with New.
type Transcoder struct {
	// FFmpegPath is the converter binary to invoke.
	FFmpegPath string

	// TempDir overrides the staging directory; empty means os.TempDir().
	TempDir string

	// Timeout bounds the converter process wait.
	Timeout time.Duration
}

// New creates a transcoder around the given ffmpeg binary.
func New(ffmpegPath string, timeout time.Duration) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Transcoder{FFmpegPath: ffmpegPath, Timeout: timeout}
}

// Normalize converts src to mono 16 kHz s16le WAV. On any converter failure
// it returns src unchanged together with the original content type. The two
// staging files live only for the duration of the call and are removed on
// every path.
func (t *Transcoder) Normalize(ctx context.Context, src []byte, contentType string) ([]byte, string) {
	out, err := t.convert(ctx, src)
	if err != nil {
		slog.Warn("audio transcode failed, using original bytes", "error", err)
		return src, contentType
	}
	return out, WAVContentType
}

// convert stages src on disk, runs ffmpeg, and reads the result back.
func (t *Transcoder) convert(ctx context.Context, src []byte) ([]byte, error) {
	dir := t.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	id := uuid.NewString()
	srcPath := filepath.Join(dir, "deskhand-"+id+".webm")
	dstPath := filepath.Join(dir, "deskhand-"+id+".wav")
	defer func() {
		_ = os.Remove(srcPath)
		_ = os.Remove(dstPath)
	}()

	if err := os.WriteFile(srcPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("staging source file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.FFmpegPath,
		"-y",
		"-i", srcPath,
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dstPath,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("converter timed out after %s", t.Timeout)
		}
		return nil, fmt.Errorf("converter: %w", err)
	}

	out, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("reading converted file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("converter produced an empty file")
	}
	return out, nil
}
