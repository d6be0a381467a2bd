package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/loqalabs/loqa-scribe/internal/audio"
)

// Device grants access to a microphone.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live microphone stream. Chunks delivers raw little-endian
// 16-bit PCM. Close releases the hardware and must be safe to call twice.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder drives the Idle -> Recording -> Processing -> Idle cycle.
type Recorder struct {
	device       Device
	transcriber  Transcriber
	onTranscript func(string)
	sampleRate   int
	channels     int
	logger       *slog.Logger

	mu      sync.Mutex
	state   State
	session *session
	message string
	closed  bool
}

func NewRecorder(device Device, t Transcriber, onTranscript func(string), sampleRate, channels int, logger *slog.Logger) *Recorder {
	return &Recorder{
		device:       device,
		transcriber:  t,
		onTranscript: onTranscript,
		sampleRate:   sampleRate,
		channels:     channels,
		logger:       logger.With(slog.String("component", "recorder")),
	}
}

// Start opens the device and begins buffering. Only valid from Idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.state != StateIdle {
		return ErrBusy
	}
	r.message = ""

	stream, err := r.device.Open(ctx)
	if err != nil {
		r.message = microphoneMessage(err)
		r.logger.Warn("microphone unavailable", slogError(err))
		return fmt.Errorf("open microphone: %w", err)
	}
	r.session = newSession(stream)
	r.state = StateRecording
	r.logger.Debug("recording started")
	return nil
}

// Stop ends the session and relays what was buffered, even if that is
// nothing. The recorder is back in Idle when Stop returns.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.state = StateProcessing
	s := r.session
	r.session = nil
	r.mu.Unlock()

	text, err := r.process(ctx, s)

	r.mu.Lock()
	r.state = StateIdle
	if err != nil {
		r.message = MessageTranscriptionFailed
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if r.onTranscript != nil {
		r.onTranscript(text)
	}
	return nil
}

func (r *Recorder) process(ctx context.Context, s *session) (string, error) {
	chunks := s.end(r.logger)
	payload, err := audio.EncodeWAV(chunks, r.sampleRate, r.channels)
	if err != nil {
		r.logger.Error("failed to encode recording", slogError(err))
		return "", err
	}
	r.logger.Info("submitting recording",
		slog.Int("chunks", len(chunks)),
		slog.String("payload", payload.String()))
	text, err := r.transcriber.Transcribe(ctx, payload)
	if err != nil {
		r.logger.Warn("recording transcription failed", slogError(err))
		return "", fmt.Errorf("transcribe recording: %w", err)
	}
	return text, nil
}

// Close releases an active stream without relaying it. Safe in any state and
// more than once; the recorder refuses new sessions afterwards.
func (r *Recorder) Close() error {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.closed = true
	if r.state == StateRecording {
		r.state = StateIdle
	}
	r.mu.Unlock()

	if s != nil {
		s.end(r.logger)
	}
	return nil
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the inline error message, or "" when there is none.
func (r *Recorder) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

func microphoneMessage(err error) string {
	if errors.Is(err, os.ErrPermission) {
		return MessageMicrophoneDenied
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	if inner.Error() == "" {
		return MessageMicrophoneDenied
	}
	return inner.Error()
}

// session buffers chunks from one stream until end is called.
type session struct {
	stream Stream
	stop   chan struct{}
	done   chan struct{}
	chunks [][]byte
	once   sync.Once
}

func newSession(stream Stream) *session {
	s := &session{
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.collect()
	return s
}

func (s *session) collect() {
	defer close(s.done)
	in := s.stream.Chunks()
	for {
		select {
		case <-s.stop:
			s.drain(in)
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			s.add(c)
		}
	}
}

func (s *session) drain(in <-chan []byte) {
	for {
		select {
		case c, ok := <-in:
			if !ok {
				return
			}
			s.add(c)
		default:
			return
		}
	}
}

func (s *session) add(c []byte) {
	if len(c) == 0 {
		return
	}
	s.chunks = append(s.chunks, append([]byte(nil), c...))
}

// end stops buffering, releases the stream and returns the chunks in order.
func (s *session) end(logger *slog.Logger) [][]byte {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if err := s.stream.Close(); err != nil {
			logger.Warn("failed to release microphone", slogError(err))
		}
	})
	return s.chunks
}
