// Package tui is the terminal front-end: a capture view with a file path
// input and a microphone toggle, and a result view with copy and clear.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/ui"
)

// Options wires the model to the relay and the microphone.
type Options struct {
	Transcriber capture.Transcriber
	// Device may be nil, in which case recording is unavailable.
	Device     capture.Device
	Clipboard  ui.Clipboard
	SampleRate int
	Channels   int
	ServerURL  string
	Logger     *slog.Logger
	Now        func() time.Time
}

type uploadDoneMsg struct{ err error }
type recordDoneMsg struct{ err error }
type copyExpiredMsg struct{}

// Model is the bubbletea model. Capture state lives in the uploader and
// recorder; the model only mirrors it into the view.
type Model struct {
	page     *ui.Page
	uploader *capture.Uploader
	recorder *capture.Recorder

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	ctx       context.Context
	serverURL string
	width     int
	height    int
	ready     bool
	busy      string
	status    string
}

func New(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var pageOpts []ui.Option
	if opts.Now != nil {
		pageOpts = append(pageOpts, ui.WithClock(opts.Now))
	}
	page := ui.NewPage(opts.Clipboard, pageOpts...)

	var recorder *capture.Recorder
	if opts.Device != nil {
		recorder = capture.NewRecorder(opts.Device, opts.Transcriber, page.SetTranscript,
			opts.SampleRate, opts.Channels, logger)
	}

	ti := textinput.New()
	ti.Placeholder = "path/to/audio.wav"
	ti.Prompt = "File: "
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		page:      page,
		uploader:  capture.NewUploader(opts.Transcriber, page.SetTranscript, logger),
		recorder:  recorder,
		input:     ti,
		spinner:   sp,
		viewport:  viewport.New(76, 10),
		ctx:       ctx,
		serverURL: opts.ServerURL,
	}
}

// Page exposes the page controller.
func (m Model) Page() *ui.Page { return m.page }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.input.Width = max(msg.Width-14, 10)
		m.viewport.Width = max(msg.Width-6, 10)
		m.viewport.Height = max(msg.Height-10, 3)
		m.syncResult()
		return m, nil

	case uploadDoneMsg:
		m.busy = ""
		if msg.err == nil {
			m.input.Reset()
			m.syncResult()
		}
		return m, nil

	case recordDoneMsg:
		m.busy = ""
		if msg.err == nil {
			m.syncResult()
		}
		return m, nil

	case copyExpiredMsg:
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.page.View() == ui.ViewResult {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		if m.recorder != nil {
			_ = m.recorder.Close()
		}
		return m, tea.Quit
	}

	if d := m.page.Display(); d != nil {
		switch msg.String() {
		case "c", "y":
			if err := d.Copy(); err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.status = ""
			return m, tea.Tick(ui.CopiedFor, func(time.Time) tea.Msg { return copyExpiredMsg{} })
		case "x", "esc":
			d.Clear()
			m.status = ""
			m.input.Focus()
			return m, textinput.Blink
		case "q":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		if m.busy != "" {
			return m, nil
		}
		return m.submitUpload()
	case "ctrl+r":
		return m.toggleRecording()
	case "esc":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitUpload() (tea.Model, tea.Cmd) {
	path := strings.TrimSpace(m.input.Value())
	if path == "" && m.uploader.Selected() == "" {
		_ = m.uploader.Submit(m.ctx)
		return m, nil
	}
	if path != "" && path != m.uploader.Selected() {
		if err := m.uploader.Select(path); err != nil {
			return m, nil
		}
	}
	m.busy = "Transcribing " + m.uploader.Describe()
	uploader, ctx := m.uploader, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return uploadDoneMsg{err: uploader.Submit(ctx)}
	})
}

func (m Model) toggleRecording() (tea.Model, tea.Cmd) {
	if m.recorder == nil {
		m.status = "Recording is not configured"
		return m, nil
	}
	recorder, ctx := m.recorder, m.ctx
	switch recorder.State() {
	case capture.StateIdle:
		if m.busy != "" {
			return m, nil
		}
		if err := recorder.Start(ctx); err != nil {
			return m, nil
		}
		m.busy = "Recording"
		return m, m.spinner.Tick
	case capture.StateRecording:
		m.busy = "Transcribing recording"
		return m, func() tea.Msg {
			return recordDoneMsg{err: recorder.Stop(ctx)}
		}
	}
	return m, nil
}

func (m *Model) syncResult() {
	if text, ok := m.page.Transcript(); ok {
		m.viewport.SetContent(text)
		m.viewport.GotoTop()
	}
}

func (m Model) View() string {
	var body string
	if d := m.page.Display(); d != nil {
		body = m.resultView(d)
	} else {
		body = m.captureView()
	}
	header := headerStyle.Render("Voice to Text")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusBar())
}

func (m Model) captureView() string {
	upload := []string{titleStyle.Render("Upload audio"), m.input.View()}
	if desc := m.uploader.Describe(); desc != "" {
		upload = append(upload, helpStyle.Render("Selected: "+desc))
	}
	if msg := m.uploader.Err(); msg != "" {
		upload = append(upload, errorStyle.Render(msg))
	}

	record := []string{titleStyle.Render("Record from microphone")}
	switch {
	case m.recorder == nil:
		record = append(record, helpStyle.Render("Not configured"))
	case m.recorder.State() == capture.StateRecording:
		record = append(record, recordingStyle.Render("● Recording, press ctrl+r to stop"))
	case m.recorder.State() == capture.StateProcessing:
		record = append(record, helpStyle.Render("Processing recording"))
	default:
		record = append(record, helpStyle.Render("Press ctrl+r to start recording"))
	}
	if m.recorder != nil {
		if msg := m.recorder.Err(); msg != "" {
			record = append(record, errorStyle.Render(msg))
		}
	}

	width := m.cardWidth()
	cards := lipgloss.JoinVertical(lipgloss.Left,
		cardStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, upload...)),
		cardStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, record...)),
	)
	if m.status != "" {
		cards = lipgloss.JoinVertical(lipgloss.Left, cards, errorStyle.Render(m.status))
	}
	if m.busy != "" {
		cards = lipgloss.JoinVertical(lipgloss.Left, cards, m.spinner.View()+" "+m.busy)
	}
	return cards
}

func (m Model) resultView(d *ui.Display) string {
	label := d.CopyLabel()
	copyHint := "[c] " + label
	if label == ui.CopiedLabel {
		copyHint = copiedStyle.Render(copyHint)
	}
	actions := copyHint + "   [x] " + ui.ClearLabel
	lines := []string{titleStyle.Render(d.Title()), m.viewport.View(), "", actions}
	if m.status != "" {
		lines = append(lines, errorStyle.Render(m.status))
	}
	return resultStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) statusBar() string {
	help := "enter: transcribe file · ctrl+r: record · ctrl+c: quit"
	if m.page.View() == ui.ViewResult {
		help = "c: copy · x: clear · ↑/↓: scroll · q: quit"
	}
	return statusBarStyle.Render(fmt.Sprintf("%s  %s", m.serverURL, help))
}

func (m Model) cardWidth() int {
	if !m.ready || m.width < 20 {
		return 76
	}
	return m.width - 4
}
