// Package client submits audio payloads to a running relay over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/audio"
)

const transcribePath = "/api/transcribe"

// maxResponseBytes bounds how much of a relay response is read.
const maxResponseBytes = 4 << 20

// Client posts multipart uploads to /api/transcribe.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Error is returned for any non-2xx relay answer. Message holds the relay's
// error field when the body had one.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Message)
}

type response struct {
	Text  *string `json:"text"`
	Error string  `json:"error"`
}

// Transcribe uploads payload as multipart field "file" and returns the text.
func (c *Client) Transcribe(ctx context.Context, payload audio.Payload) (string, error) {
	body, contentType, err := encodeForm(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcribePath, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", transcribePath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{StatusCode: resp.StatusCode, Message: decoded.Error}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if decoded.Text == nil {
		return "", fmt.Errorf("decode response: missing text")
	}
	return *decoded.Text, nil
}

func encodeForm(payload audio.Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := payload.Filename
	if filename == "" {
		filename = "audio"
	}
	mediaType := payload.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mediaType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
