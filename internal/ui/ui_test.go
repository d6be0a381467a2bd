package ui

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memClipboard struct {
	text string
	err  error
}

func (m *memClipboard) WriteText(text string) error {
	if m.err != nil {
		return m.err
	}
	m.text = text
	return nil
}

func TestPageStartsInCaptureView(t *testing.T) {
	p := NewPage(&memClipboard{})
	if p.View() != ViewCapture || p.Display() != nil {
		t.Fatal("expected capture view with no display")
	}
	if _, ok := p.Transcript(); ok {
		t.Fatal("expected no transcript")
	}
}

func TestPageClearAlwaysReturnsToCapture(t *testing.T) {
	for _, text := range []string{"hello world", "", "multi\nline", "  spaced  "} {
		p := NewPage(&memClipboard{})
		p.SetTranscript(text)
		if p.View() != ViewResult {
			t.Fatalf("%q: expected result view", text)
		}
		got, ok := p.Transcript()
		if !ok || got != text {
			t.Fatalf("transcript mismatch: %q %v", got, ok)
		}
		p.Clear()
		if p.View() != ViewCapture || p.Display() != nil {
			t.Fatalf("%q: clear must return to capture view", text)
		}
		if _, ok := p.Transcript(); ok {
			t.Fatalf("%q: transcript must be absent after clear", text)
		}
	}
}

func TestPageSetTranscriptReplacesWholesale(t *testing.T) {
	p := NewPage(&memClipboard{})
	p.SetTranscript("first")
	old := p.Display()
	p.SetTranscript("second")
	if got, _ := p.Transcript(); got != "second" {
		t.Fatalf("expected replacement, got %q", got)
	}
	old.Clear()
	if p.View() != ViewResult {
		t.Fatal("a replaced display must not clear the current transcript")
	}
	p.Display().Clear()
	if p.View() != ViewCapture {
		t.Fatal("display clear should return to capture view")
	}
}

func TestDisplayCopyAcknowledgementReverts(t *testing.T) {
	clock := newFakeClock()
	cb := &memClipboard{}
	p := NewPage(cb, WithClock(clock.Now))
	p.SetTranscript("hello world")
	d := p.Display()

	if d.CopyLabel() != CopyLabel {
		t.Fatalf("expected %q before copy", CopyLabel)
	}
	if err := d.Copy(); err != nil {
		t.Fatal(err)
	}
	if cb.text != "hello world" {
		t.Fatalf("clipboard got %q", cb.text)
	}
	if d.CopyLabel() != CopiedLabel {
		t.Fatal("expected acknowledgement right after copy")
	}
	clock.Advance(CopiedFor - time.Millisecond)
	if d.CopyLabel() != CopiedLabel {
		t.Fatal("acknowledgement must last two seconds")
	}
	clock.Advance(time.Millisecond)
	if d.CopyLabel() != CopyLabel {
		t.Fatal("acknowledgement must revert after two seconds")
	}
	if d.Text() != "hello world" {
		t.Fatal("copy must not alter the transcript")
	}
}

func TestDisplayCopyFailure(t *testing.T) {
	p := NewPage(&memClipboard{err: errors.New("no display")})
	p.SetTranscript("x")
	if err := p.Display().Copy(); err == nil {
		t.Fatal("expected error")
	}
	if p.Display().CopyLabel() != CopyLabel {
		t.Fatal("failed copy must not acknowledge")
	}

	p = NewPage(nil)
	p.SetTranscript("x")
	if err := p.Display().Copy(); err == nil {
		t.Fatal("expected error without clipboard")
	}
}

func TestDisplayTitle(t *testing.T) {
	p := NewPage(nil)
	p.SetTranscript("x")
	if p.Display().Title() != "Transcription Result" {
		t.Fatalf("unexpected title %q", p.Display().Title())
	}
}
