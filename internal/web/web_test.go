package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestMux(t *testing.T, opts Options) *http.ServeMux {
	t.Helper()
	h, err := NewHandler(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestIndexRendersCaptureAndResult(t *testing.T) {
	mux := newTestMux(t, Options{MaxUploadBytes: 25 << 20, Version: "v1.2.3"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<title>Voice to Text</title>",
		`data-transcribe-path="/api/transcribe"`,
		`accept="audio/*"`,
		"Transcribe File",
		"Start Recording",
		"Transcription Result",
		"Up to 25 MiB",
		"scribe v1.2.3",
		`class="beam"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if got := strings.Count(body, `class="beam"`); got != 12 {
		t.Fatalf("expected 12 beams, got %d", got)
	}
}

func TestIndexOnlyServesRoot(t *testing.T) {
	mux := newTestMux(t, Options{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	mux := newTestMux(t, Options{})
	cases := map[string]string{
		"/static/app.js":     "Transcription failed",
		"/static/styles.css": ".beam",
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: missing %q", path, want)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing asset, got %d", rec.Code)
	}
}

// The recorder script must block a second start while the permission prompt
// is pending and release streams that arrive for an abandoned attempt.
func TestRecorderScriptSingleSession(t *testing.T) {
	mux := newTestMux(t, Options{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	script := rec.Body.String()
	for _, want := range []string{
		`if (state !== "idle") {`,
		`state = "starting";`,
		`toggle.disabled = state === "starting" || state === "processing";`,
		`if (current !== attempt || state !== "starting") {`,
		`stopTracks(s);`,
		`attempt++;`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("recorder script missing %q", want)
		}
	}
	start := strings.Index(script, "function startRecording")
	gum := strings.Index(script[start:], "getUserMedia({ audio: true })")
	starting := strings.Index(script[start:], `state = "starting";`)
	if gum < 0 || starting < 0 || starting > gum {
		t.Fatal("toggle must leave idle before the microphone is requested")
	}
}
