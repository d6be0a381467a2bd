package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/audio"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3-turbo"
)

// Upstream is the external speech-recognition API.
type Upstream interface {
	Transcribe(ctx context.Context, apiKey string, payload audio.Payload) (string, error)
}

// StatusError reports a non-success answer from the upstream API. Body is
// kept for server-side diagnostics only.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// GroqUpstream talks to Groq's OpenAI-compatible transcription endpoint.
type GroqUpstream struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGroqUpstream builds an upstream client. A nil httpClient uses the
// library default.
func NewGroqUpstream(baseURL, model string, httpClient *http.Client) *GroqUpstream {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &GroqUpstream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (g *GroqUpstream) Model() string { return g.model }

// Transcribe sends the payload as multipart fields file and model with a
// bearer token. The key is passed per call so rotation needs no restart.
func (g *GroqUpstream) Transcribe(ctx context.Context, apiKey string, payload audio.Payload) (string, error) {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = g.baseURL
	if g.httpClient != nil {
		cfg.HTTPClient = g.httpClient
	}
	client := openai.NewClientWithConfig(cfg)

	filename := payload.Filename
	if filename == "" {
		filename = "audio"
	}
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.model,
		Reader:   bytes.NewReader(payload.Data),
		FilePath: filename,
	})
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0:
			return "", &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		case errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0:
			return "", &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
		}
		return "", fmt.Errorf("groq transcription: %w", err)
	}
	return resp.Text, nil
}
