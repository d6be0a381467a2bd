package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

const defaultChunkBytes = 3200

// ExecDevice captures by running a command that writes raw PCM to stdout,
// e.g. "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
type ExecDevice struct {
	cmd        []string
	chunkBytes int
	logger     *slog.Logger
}

func NewExecDevice(command string, chunkBytes int, logger *slog.Logger) (*ExecDevice, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse record command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("record command is empty")
	}
	if chunkBytes <= 0 {
		chunkBytes = defaultChunkBytes
	}
	return &ExecDevice{
		cmd:        args,
		chunkBytes: chunkBytes,
		logger:     logger.With(slog.String("component", "exec-device")),
	}, nil
}

// Open starts the capture process. It runs until the stream is closed or
// ctx is done.
func (d *ExecDevice) Open(ctx context.Context) (Stream, error) {
	command := exec.CommandContext(ctx, d.cmd[0], d.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &limitedBuffer{max: 4096}
	command.Stderr = stderr

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start record command: %w", err)
	}
	d.logger.Debug("capture process started", slog.Int("pid", command.Process.Pid))

	s := &execStream{
		cmd:      command,
		stdout:   stdout,
		stderr:   stderr,
		chunks:   make(chan []byte, 16),
		quit:     make(chan struct{}),
		readDone: make(chan struct{}),
		logger:   d.logger,
	}
	go s.read(d.chunkBytes)
	return s, nil
}

type execStream struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *limitedBuffer
	chunks   chan []byte
	quit     chan struct{}
	readDone chan struct{}
	logger   *slog.Logger

	once     sync.Once
	closeErr error
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

func (s *execStream) read(chunkBytes int) {
	defer close(s.readDone)
	defer close(s.chunks)
	buf := make([]byte, chunkBytes)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.chunks <- chunk:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("capture stream ended", slogError(err))
			}
			return
		}
	}
}

// Close kills the process and reaps it.
func (s *execStream) Close() error {
	s.once.Do(func() {
		close(s.quit)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.readDone
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.closeErr = fmt.Errorf("wait for record command: %w", err)
		}
		if msg := s.stderr.String(); msg != "" {
			s.logger.Debug("capture process stderr", slog.String("stderr", msg))
		}
	})
	return s.closeErr
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
