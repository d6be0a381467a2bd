package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/client"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/tui"
	"github.com/loqalabs/loqa-scribe/internal/ui"
)

var version = "0.1.0-dev"

type CLI struct {
	Config string `help:"Path to configuration file." default:"scribe.yaml" type:"path"`
	Server string `help:"Relay server URL (overrides client.server_url)."`
	Copy   bool   `help:"Copy the transcript to the clipboard."`
	Debug  bool   `help:"Write debug logs (stderr, or scribe-debug.log in the TUI)."`

	TUI     tuiCmd     `cmd:"" name:"tui" default:"1" help:"Interactive terminal UI (default)."`
	Upload  uploadCmd  `cmd:"" help:"Transcribe an audio file and print the text."`
	Record  recordCmd  `cmd:"" help:"Record from the microphone and print the text."`
	Version versionCmd `cmd:"" help:"Print version and exit."`
}

// app is bound into every command's Run.
type app struct {
	ctx        context.Context
	cfg        config.Config
	copyResult bool
	debug      bool
	client     *client.Client
}

func (a *app) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if a.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *app) device(logger *slog.Logger) (capture.Device, error) {
	return capture.NewExecDevice(a.cfg.Client.RecordCommand, a.cfg.Client.ChunkBytes, logger)
}

// finish prints the transcript and copies it when asked.
func (a *app) finish(page *ui.Page) error {
	text, present := page.Transcript()
	if !present {
		return errors.New("no transcript")
	}
	fmt.Println(text)
	if a.copyResult {
		if !tui.ClipboardAvailable() {
			return errors.New("clipboard is not available")
		}
		if err := page.Display().Copy(); err != nil {
			return fmt.Errorf("copy transcript: %w", err)
		}
		fmt.Fprintln(os.Stderr, page.Display().CopyLabel())
	}
	return nil
}

type tuiCmd struct{}

func (c *tuiCmd) Run(a *app) error {
	logOut := io.Discard
	if a.debug {
		f, err := os.OpenFile("scribe-debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := a.logger(logOut)

	opts := tui.Options{
		Transcriber: a.client,
		Clipboard:   tui.SystemClipboard{},
		SampleRate:  a.cfg.Client.SampleRate,
		Channels:    a.cfg.Client.Channels,
		ServerURL:   a.cfg.Client.ServerURL,
		Logger:      logger,
	}
	if device, err := a.device(logger); err != nil {
		logger.Warn("recording disabled", slog.String("error", err.Error()))
	} else {
		opts.Device = device
	}

	text, err := tui.Run(a.ctx, opts)
	if err != nil {
		return err
	}
	if text != "" {
		fmt.Println(text)
	}
	return nil
}

type uploadCmd struct {
	File string `arg:"" type:"existingfile" help:"Audio file to transcribe."`
}

func (c *uploadCmd) Run(a *app) error {
	logger := a.logger(os.Stderr)
	page := ui.NewPage(tui.SystemClipboard{})
	uploader := capture.NewUploader(a.client, page.SetTranscript, logger)

	if err := uploader.Select(c.File); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Transcribing %s...\n", uploader.Describe())
	if err := uploader.Submit(a.ctx); err != nil {
		return fmt.Errorf("%s: %w", uploader.Err(), err)
	}
	return a.finish(page)
}

type recordCmd struct {
	Duration time.Duration `help:"Stop after this long. Zero waits for Enter." default:"0s"`
}

func (c *recordCmd) Run(a *app) error {
	logger := a.logger(os.Stderr)
	device, err := a.device(logger)
	if err != nil {
		return err
	}
	page := ui.NewPage(tui.SystemClipboard{})
	recorder := capture.NewRecorder(device, a.client, page.SetTranscript,
		a.cfg.Client.SampleRate, a.cfg.Client.Channels, logger)
	defer recorder.Close()

	if err := recorder.Start(a.ctx); err != nil {
		if msg := recorder.Err(); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}

	var timeout <-chan time.Time
	if c.Duration > 0 {
		fmt.Fprintf(os.Stderr, "Recording for %s...\n", c.Duration)
		timeout = time.After(c.Duration)
	} else {
		fmt.Fprintln(os.Stderr, "Recording... press Enter to stop.")
	}
	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-a.ctx.Done():
		return a.ctx.Err()
	case <-timeout:
	case <-enter:
	}

	fmt.Fprintln(os.Stderr, "Processing...")
	if err := recorder.Stop(a.ctx); err != nil {
		return fmt.Errorf("%s: %w", recorder.Err(), err)
	}
	return a.finish(page)
}

type versionCmd struct{}

func (c *versionCmd) Run(_ *app) error {
	fmt.Printf("scribe %s\n", version)
	return nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("scribe"),
		kong.Description("Voice to text from the terminal."),
		kong.UsageOnError(),
	)

	cfg, err := config.LoadOptional(cli.Config)
	kctx.FatalIfErrorf(err)
	if cli.Server != "" {
		cfg.Client.ServerURL = cli.Server
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		ctx:        ctx,
		cfg:        cfg,
		copyResult: cli.Copy,
		debug:      cli.Debug,
		client:     client.New(cfg.Client.ServerURL, time.Duration(cfg.Client.TimeoutMS)*time.Millisecond),
	}
	kctx.FatalIfErrorf(kctx.Run(a))
}
