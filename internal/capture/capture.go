// Package capture implements the two ways of producing an audio payload:
// picking a file and recording from a microphone. Both hand the payload to a
// Transcriber and forward the transcript to a callback.
package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-scribe/internal/audio"
)

// Inline messages shown next to the capture controls.
const (
	MessageSelectFile          = "Please select a file"
	MessageTranscriptionFailed = "Transcription failed"
	MessageMicrophoneDenied    = "Microphone access denied"
)

var (
	ErrBusy         = errors.New("capture already in progress")
	ErrNoSelection  = errors.New("no file selected")
	ErrNotRecording = errors.New("not recording")
	ErrClosed       = errors.New("capture closed")
	ErrNotAudio     = audio.ErrNotAudio
)

// Transcriber turns one payload into text. client.Client satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, payload audio.Payload) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, payload audio.Payload) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, payload audio.Payload) (string, error) {
	return f(ctx, payload)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
