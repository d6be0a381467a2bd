package ui

import (
	"fmt"
	"sync"
	"time"
)

const (
	Title       = "Transcription Result"
	CopyLabel   = "Copy"
	CopiedLabel = "Copied!"
	ClearLabel  = "Clear"

	// CopiedFor is how long the copy acknowledgement stays visible.
	CopiedFor = 2 * time.Second
)

// Clipboard receives copied transcripts.
type Clipboard interface {
	WriteText(text string) error
}

// ClipboardFunc adapts a function to Clipboard.
type ClipboardFunc func(text string) error

func (f ClipboardFunc) WriteText(text string) error { return f(text) }

// Display renders one transcript with copy and clear actions. The text never
// changes after construction.
type Display struct {
	text      string
	clipboard Clipboard
	now       func() time.Time
	onClear   func()

	mu       sync.Mutex
	copiedAt time.Time
}

func newDisplay(text string, clipboard Clipboard, now func() time.Time, onClear func()) *Display {
	return &Display{text: text, clipboard: clipboard, now: now, onClear: onClear}
}

func (d *Display) Title() string { return Title }

// Text returns the transcript exactly as received.
func (d *Display) Text() string { return d.text }

// Copy writes the transcript to the clipboard and starts the acknowledgement.
func (d *Display) Copy() error {
	if d.clipboard == nil {
		return fmt.Errorf("clipboard unavailable")
	}
	if err := d.clipboard.WriteText(d.text); err != nil {
		return fmt.Errorf("copy transcript: %w", err)
	}
	d.mu.Lock()
	d.copiedAt = d.now()
	d.mu.Unlock()
	return nil
}

// CopyLabel is "Copied!" for CopiedFor after a successful Copy, else "Copy".
func (d *Display) CopyLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.copiedAt.IsZero() && d.now().Sub(d.copiedAt) < CopiedFor {
		return CopiedLabel
	}
	return CopyLabel
}

// Clear hands control back to the page controller.
func (d *Display) Clear() {
	if d.onClear != nil {
		d.onClear()
	}
}
