// Package ui holds the front-end state shared by the terminal and browser
// clients: the page controller and the result display.
package ui

import (
	"sync"
	"time"
)

// View is what the page currently shows.
type View int

const (
	ViewCapture View = iota
	ViewResult
)

func (v View) String() string {
	if v == ViewResult {
		return "result"
	}
	return "capture"
}

// Page owns the single transcript slot. With no transcript it shows the
// capture controls; with one it shows only the result display.
type Page struct {
	clipboard Clipboard
	now       func() time.Time

	mu      sync.Mutex
	display *Display
}

type Option func(*Page)

// WithClock replaces time.Now, used for the copy acknowledgement.
func WithClock(now func() time.Time) Option {
	return func(p *Page) { p.now = now }
}

func NewPage(clipboard Clipboard, opts ...Option) *Page {
	p := &Page{clipboard: clipboard, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTranscript replaces the slot. An empty string is still a transcript.
func (p *Page) SetTranscript(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var d *Display
	d = newDisplay(text, p.clipboard, p.now, func() { p.clearDisplay(d) })
	p.display = d
}

// clearDisplay ignores clears from a display that has already been replaced.
func (p *Page) clearDisplay(d *Display) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.display == d {
		p.display = nil
	}
}

// Clear empties the slot and returns the page to the capture view.
func (p *Page) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.display = nil
}

func (p *Page) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.display != nil {
		return ViewResult
	}
	return ViewCapture
}

// Transcript returns the current transcript and whether one is present.
func (p *Page) Transcript() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.display == nil {
		return "", false
	}
	return p.display.Text(), true
}

// Display returns the result display, or nil in the capture view.
func (p *Page) Display() *Display {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display
}
