// Package web serves the browser front-end: one page with the upload and
// microphone cards, the result panel and the background beams.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options are rendered into the page.
type Options struct {
	Title          string
	TranscribePath string
	MaxUploadBytes int64
	Version        string
}

type Handler struct {
	opts      Options
	templates *template.Template
	static    http.Handler
	logger    *slog.Logger
}

func NewHandler(opts Options, logger *slog.Logger) (*Handler, error) {
	if opts.Title == "" {
		opts.Title = "Voice to Text"
	}
	if opts.TranscribePath == "" {
		opts.TranscribePath = "/api/transcribe"
	}
	dir, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("templates subdirectory: %w", err)
	}
	tmpl, err := template.ParseFS(dir, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Handler{
		opts:      opts,
		templates: tmpl,
		static:    http.FileServer(http.FS(staticFS)),
		logger:    logger.With(slog.String("component", "web")),
	}, nil
}

// Register mounts the page on / and the assets on /static/.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/static/", h.static)
	mux.HandleFunc("/", h.handleIndex)
}

type pageData struct {
	Title          string
	TranscribePath string
	MaxUploadBytes int64
	MaxUploadLabel string
	Version        string
	Beams          []beam
}

type beam struct {
	Left     int
	Delay    string
	Duration string
	Width    int
}

// beams is a fixed layout so the page renders identically on every load.
func beams() []beam {
	out := make([]beam, 0, 12)
	for i := 0; i < 12; i++ {
		out = append(out, beam{
			Left:     4 + i*8,
			Delay:    fmt.Sprintf("%.1fs", float64((i*7)%10)*0.6),
			Duration: fmt.Sprintf("%ds", 6+(i*5)%7),
			Width:    1 + i%3,
		})
	}
	return out
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := pageData{
		Title:          h.opts.Title,
		TranscribePath: h.opts.TranscribePath,
		MaxUploadBytes: h.opts.MaxUploadBytes,
		Version:        h.opts.Version,
		Beams:          beams(),
	}
	if h.opts.MaxUploadBytes > 0 {
		data.MaxUploadLabel = humanize.IBytes(uint64(h.opts.MaxUploadBytes))
	}

	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.logger.Error("failed to render index", slog.String("error", err.Error()))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
