package relay

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func multipartRequest(t *testing.T, field, filename string, data []byte, extra map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, Path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func newTestHandler(up Upstream, key string, limit int64) *Handler {
	return NewHandler(New(up, staticKey(key), time.Second, newLogger()), limit, newLogger())
}

func TestHandlerSuccess(t *testing.T) {
	up := &fakeUpstream{text: "hello world"}
	h := newTestHandler(up, "k", 1<<20)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "file", "clip.wav", []byte("RIFFxxxxWAVE"), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["text"] != "hello world" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("success must not carry an error field")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
	if up.last.Filename != "clip.wav" || string(up.last.Data) != "RIFFxxxxWAVE" {
		t.Fatalf("payload not forwarded: %+v", up.last)
	}
}

func TestHandlerMissingFile(t *testing.T) {
	cases := map[string]*http.Request{
		"no fields":     multipartRequest(t, "", "", nil, nil),
		"other fields":  multipartRequest(t, "", "", nil, map[string]string{"model": "x", "name": "clip"}),
		"wrong field":   multipartRequest(t, "audio", "clip.wav", []byte("data"), nil),
		"not multipart": httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"file":"x"}`)),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			up := &fakeUpstream{text: "x"}
			rec := httptest.NewRecorder()
			newTestHandler(up, "k", 1<<20).ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != "No file provided" {
				t.Fatalf("unexpected body %v", body)
			}
			if up.Calls() != 0 {
				t.Fatal("upstream must not be called")
			}
		})
	}
}

func TestHandlerMissingCredential(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	rec := httptest.NewRecorder()
	newTestHandler(up, "", 1<<20).ServeHTTP(rec, multipartRequest(t, "file", "clip.wav", []byte("data"), nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "API key not configured" {
		t.Fatalf("unexpected body %v", body)
	}
	if up.Calls() != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestHandlerUpstreamFailureHidesDetails(t *testing.T) {
	up := &fakeUpstream{err: &StatusError{StatusCode: 429, Body: "rate limited for org 1234"}}
	rec := httptest.NewRecorder()
	newTestHandler(up, "k", 1<<20).ServeHTTP(rec, multipartRequest(t, "file", "clip.wav", []byte("data"), nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Transcription failed: 429" {
		t.Fatalf("unexpected body %v", body)
	}
	if strings.Contains(rec.Body.String(), "1234") {
		t.Fatal("upstream details leaked to caller")
	}
}

func TestHandlerRejectsOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&fakeUpstream{}, "k", 1<<20).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header")
	}
}

func TestHandlerRejectsOversizedUpload(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	rec := httptest.NewRecorder()
	req := multipartRequest(t, "file", "big.wav", bytes.Repeat([]byte{1}, 4096), nil)
	newTestHandler(up, "k", 1024).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "File too large" {
		t.Fatalf("unexpected body %v", body)
	}
	if up.Calls() != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestHandlerUploadLimitAppliesToFile(t *testing.T) {
	const limit = 1024
	cases := []struct {
		name   string
		size   int
		status int
	}{
		{"exactly at limit", limit, http.StatusOK},
		{"one byte over", limit + 1, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &fakeUpstream{text: "ok"}
			rec := httptest.NewRecorder()
			req := multipartRequest(t, "file", "clip.wav", bytes.Repeat([]byte{1}, tc.size), map[string]string{"note": "x"})
			newTestHandler(up, "k", limit).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusOK && len(up.last.Data) != tc.size {
				t.Fatalf("upstream received %d bytes, want %d", len(up.last.Data), tc.size)
			}
			if tc.status != http.StatusOK && up.Calls() != 0 {
				t.Fatal("upstream must not be called")
			}
		})
	}
}

func TestHandlerRejectsOversizedChunkedBody(t *testing.T) {
	up := &fakeUpstream{text: "x"}
	req := multipartRequest(t, "file", "big.wav", bytes.Repeat([]byte{1}, 1024+multipartEnvelope+1), nil)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	newTestHandler(up, "k", 1024).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if up.Calls() != 0 {
		t.Fatal("upstream must not be called")
	}
}
