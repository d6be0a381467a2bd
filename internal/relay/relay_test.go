package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/audio"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUpstream struct {
	mu      sync.Mutex
	calls   int
	lastKey string
	last    audio.Payload
	text    string
	err     error
	block   bool
}

func (f *fakeUpstream) Transcribe(ctx context.Context, apiKey string, p audio.Payload) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastKey = apiKey
	f.last = p
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeUpstream) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticKey(key string) func() string { return func() string { return key } }

func samplePayload() *audio.Payload {
	return &audio.Payload{Data: []byte("RIFF....WAVE"), MediaType: "audio/wav", Filename: "clip.wav"}
}

func TestTranscribeReturnsUpstreamTextVerbatim(t *testing.T) {
	texts := []string{"hello world", "", "  leading and trailing  ", "line one\nline two\n\n", "ünïcødé ✓"}
	for _, text := range texts {
		up := &fakeUpstream{text: text}
		r := New(up, staticKey("k"), time.Second, newLogger())
		res := r.Transcribe(context.Background(), samplePayload())
		if res.Kind != KindOK || res.Status() != http.StatusOK {
			t.Fatalf("expected ok, got %v", res.Kind)
		}
		if res.Text != text {
			t.Fatalf("text altered: got %q want %q", res.Text, text)
		}
	}
}

func TestTranscribeForwardsPayloadAndKey(t *testing.T) {
	up := &fakeUpstream{text: "ok"}
	r := New(up, staticKey("secret"), time.Second, newLogger())
	p := samplePayload()
	r.Transcribe(context.Background(), p)
	if up.lastKey != "secret" {
		t.Fatalf("expected key forwarded, got %q", up.lastKey)
	}
	if string(up.last.Data) != string(p.Data) || up.last.Filename != "clip.wav" {
		t.Fatalf("payload not forwarded intact: %+v", up.last)
	}
}

func TestTranscribeWithoutPayload(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	r := New(up, staticKey("k"), time.Second, newLogger())
	res := r.Transcribe(context.Background(), nil)
	if res.Kind != KindValidation || res.Status() != http.StatusBadRequest || res.Message() != "No file provided" {
		t.Fatalf("unexpected result %+v", res)
	}
	if up.Calls() != 0 {
		t.Fatalf("upstream must not be called")
	}
}

func TestTranscribeWithoutCredential(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	for _, key := range []func() string{nil, staticKey("")} {
		r := New(up, key, time.Second, newLogger())
		res := r.Transcribe(context.Background(), samplePayload())
		if res.Kind != KindConfiguration || res.Status() != http.StatusInternalServerError {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.Message() != "API key not configured" {
			t.Fatalf("unexpected message %q", res.Message())
		}
	}
	if up.Calls() != 0 {
		t.Fatalf("upstream must not be called without a credential, got %d calls", up.Calls())
	}
}

func TestTranscribeCredentialReadPerCall(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	key := ""
	r := New(up, func() string { return key }, time.Second, newLogger())
	if res := r.Transcribe(context.Background(), samplePayload()); res.Kind != KindConfiguration {
		t.Fatalf("expected configuration error first")
	}
	key = "now-set"
	if res := r.Transcribe(context.Background(), samplePayload()); res.Kind != KindOK {
		t.Fatalf("expected ok once key is set, got %v", res.Kind)
	}
}

func TestTranscribeUpstreamStatus(t *testing.T) {
	for _, status := range []int{400, 401, 413, 429, 500, 503} {
		up := &fakeUpstream{err: &StatusError{StatusCode: status, Body: `{"error":{"message":"secret detail"}}`}}
		r := New(up, staticKey("k"), time.Second, newLogger())
		res := r.Transcribe(context.Background(), samplePayload())
		if res.Kind != KindUpstream || res.Status() != http.StatusInternalServerError {
			t.Fatalf("status %d: unexpected result %+v", status, res)
		}
		want := "Transcription failed: " + strconv.Itoa(status)
		if res.Message() != want {
			t.Fatalf("got %q want %q", res.Message(), want)
		}
	}
}

func TestTranscribeTransportFailure(t *testing.T) {
	up := &fakeUpstream{err: errors.New("dial tcp: connection refused")}
	r := New(up, staticKey("k"), time.Second, newLogger())
	res := r.Transcribe(context.Background(), samplePayload())
	if res.Kind != KindTransport || res.Message() != "Internal server error" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	up := &fakeUpstream{block: true}
	r := New(up, staticKey("k"), 20*time.Millisecond, newLogger())
	res := r.Transcribe(context.Background(), samplePayload())
	if res.Kind != KindTransport {
		t.Fatalf("expected transport failure on timeout, got %v", res.Kind)
	}
}

type panickingUpstream struct{}

func (panickingUpstream) Transcribe(context.Context, string, audio.Payload) (string, error) {
	panic("boom")
}

func TestTranscribeRecoversUpstreamPanic(t *testing.T) {
	r := New(panickingUpstream{}, staticKey("k"), time.Second, newLogger())
	if res := r.Transcribe(context.Background(), samplePayload()); res.Kind != KindTransport {
		t.Fatalf("expected transport failure, got %v", res.Kind)
	}
}

func TestObserversReceiveOutcome(t *testing.T) {
	up := &fakeUpstream{text: "hello"}
	r := New(up, staticKey("k"), time.Second, newLogger())

	var got []Outcome
	r.AddObserver(ObserverFunc(func(_ context.Context, o Outcome) error {
		got = append(got, o)
		return nil
	}))
	r.AddObserver(ObserverFunc(func(context.Context, Outcome) error {
		return errors.New("observer down")
	}))

	ctx := WithRequestID(context.Background(), "req-1")
	if res := r.Transcribe(ctx, samplePayload()); res.Kind != KindOK {
		t.Fatalf("failing observer must not change the result")
	}
	r.Transcribe(context.Background(), nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got))
	}
	first := got[0]
	if first.RequestID != "req-1" || first.Kind != KindOK || first.Status != 200 {
		t.Fatalf("unexpected outcome %+v", first)
	}
	if first.Filename != "clip.wav" || first.Bytes != len(samplePayload().Data) || first.TextLength != 5 {
		t.Fatalf("unexpected outcome payload fields %+v", first)
	}
	if got[1].Kind != KindValidation || got[1].RequestID == "" {
		t.Fatalf("expected validation outcome with generated id, got %+v", got[1])
	}
}

func TestObserversOutliveCancelledRequest(t *testing.T) {
	up := &fakeUpstream{block: true}
	r := New(up, staticKey("k"), time.Minute, newLogger())

	var observedErr error
	var observedID string
	r.AddObserver(ObserverFunc(func(ctx context.Context, o Outcome) error {
		observedErr = ctx.Err()
		observedID = RequestIDFrom(ctx)
		return nil
	}))

	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-gone"))
	go func() {
		for up.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	if res := r.Transcribe(ctx, samplePayload()); res.Kind != KindTransport {
		t.Fatalf("expected transport failure, got %v", res.Kind)
	}
	if observedErr != nil {
		t.Fatalf("observer context should not be cancelled, got %v", observedErr)
	}
	if observedID != "req-gone" {
		t.Fatalf("request id lost, got %q", observedID)
	}
}
