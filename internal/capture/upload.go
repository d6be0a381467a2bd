package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-scribe/internal/audio"
)

// Uploader holds the selected file and submits it on demand.
type Uploader struct {
	transcriber  Transcriber
	onTranscript func(string)
	logger       *slog.Logger

	mu       sync.Mutex
	selected string
	size     int64
	busy     bool
	message  string
}

func NewUploader(t Transcriber, onTranscript func(string), logger *slog.Logger) *Uploader {
	return &Uploader{
		transcriber:  t,
		onTranscript: onTranscript,
		logger:       logger.With(slog.String("component", "upload")),
	}
}

// Select validates path as an audio file and makes it the selection. A
// rejected path leaves the previous selection in place.
func (u *Uploader) Select(path string) error {
	info, err := u.check(path)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.message = err.Error()
		return err
	}
	u.selected = path
	u.size = info.Size()
	u.message = ""
	return nil
}

func (u *Uploader) check(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("select file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	mediaType, err := audio.DetectFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.IsAudio(mediaType) {
		return nil, fmt.Errorf("%s: %w (detected %s)", filepath.Base(path), ErrNotAudio, mediaType)
	}
	return info, nil
}

// Submit reads the selection and relays it. On success the selection is
// reset and the transcript forwarded; on failure the selection is kept.
func (u *Uploader) Submit(ctx context.Context) error {
	u.mu.Lock()
	if u.busy {
		u.mu.Unlock()
		return ErrBusy
	}
	if u.selected == "" {
		u.message = MessageSelectFile
		u.mu.Unlock()
		return ErrNoSelection
	}
	u.busy = true
	u.message = ""
	path := u.selected
	u.mu.Unlock()

	text, err := u.transcribe(ctx, path)

	u.mu.Lock()
	u.busy = false
	if err != nil {
		u.mu.Unlock()
		return err
	}
	u.selected = ""
	u.size = 0
	u.mu.Unlock()

	if u.onTranscript != nil {
		u.onTranscript(text)
	}
	return nil
}

func (u *Uploader) transcribe(ctx context.Context, path string) (string, error) {
	payload, err := audio.ReadFile(path)
	if err != nil {
		u.fail(err.Error())
		return "", err
	}
	u.logger.Info("submitting upload", slog.String("payload", payload.String()))
	text, err := u.transcriber.Transcribe(ctx, payload)
	if err != nil {
		u.logger.Warn("upload transcription failed", slogError(err))
		u.fail(MessageTranscriptionFailed)
		return "", fmt.Errorf("transcribe %s: %w", payload.Filename, err)
	}
	return text, nil
}

func (u *Uploader) fail(msg string) {
	u.mu.Lock()
	u.message = msg
	u.mu.Unlock()
}

// Busy reports whether a submission is outstanding.
func (u *Uploader) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.busy
}

// Err returns the inline error message, or "" when there is none.
func (u *Uploader) Err() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.message
}

// Selected returns the selected path, or "".
func (u *Uploader) Selected() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.selected
}

// Describe renders the selection for display, e.g. "clip.wav (96 kB)".
func (u *Uploader) Describe() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.selected == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s)", filepath.Base(u.selected), humanize.Bytes(uint64(u.size)))
}
