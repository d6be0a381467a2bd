package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/audio"
)

// Path is where the handler is mounted.
const Path = "/api/transcribe"

const multipartMemory = 8 << 20

// multipartEnvelope is the allowance on top of maxUploadBytes for boundaries,
// part headers and small form fields. The file part itself is held to
// maxUploadBytes exactly.
const multipartEnvelope = 64 << 10

var errFileTooLarge = errors.New("file exceeds upload limit")

// Handler exposes the relay as POST /api/transcribe taking multipart field "file".
type Handler struct {
	relay          *Relay
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewHandler(relay *Relay, maxUploadBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		relay:          relay,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "relay-http")),
	}
}

type textResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	if h.maxUploadBytes > 0 {
		bodyLimit := h.maxUploadBytes + multipartEnvelope
		if r.ContentLength > bodyLimit {
			h.rejectTooLarge(w, requestID, r.ContentLength)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	}

	payload, err := h.readPayload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, errFileTooLarge) {
			h.rejectTooLarge(w, requestID, r.ContentLength)
			return
		}
		h.logger.Debug("request carries no audio",
			slog.String("request_id", requestID), slogError(err))
	}

	res := h.relay.Transcribe(WithRequestID(r.Context(), requestID), payload)
	if res.Kind == KindOK {
		writeJSON(w, res.Status(), textResponse{Text: res.Text})
		return
	}
	writeJSON(w, res.Status(), errorResponse{Error: res.Message()})
}

// readPayload returns nil and the reason when the form has no "file" part.
func (h *Handler) readPayload(r *http.Request) (*audio.Payload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return nil, errFileTooLarge
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = audio.Detect(data)
	}
	return &audio.Payload{Data: data, MediaType: mediaType, Filename: header.Filename}, nil
}

func (h *Handler) rejectTooLarge(w http.ResponseWriter, requestID string, size int64) {
	h.logger.Warn("upload exceeds limit",
		slog.String("request_id", requestID),
		slog.Int64("content_length", size),
		slog.Int64("limit", h.maxUploadBytes))
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
