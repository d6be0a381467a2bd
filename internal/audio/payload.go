// Package audio holds the in-memory audio object handed from a capture path
// to the relay.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// ErrNotAudio is returned when content does not look like audio.
var ErrNotAudio = errors.New("file is not an audio file")

// Payload is a single audio blob plus the metadata sent alongside it.
type Payload struct {
	Data      []byte
	MediaType string
	Filename  string
}

// Size returns the payload length in bytes.
func (p Payload) Size() int { return len(p.Data) }

// String is used in logs and never includes the audio bytes.
func (p Payload) String() string {
	return fmt.Sprintf("%s (%s, %s)", p.Filename, p.MediaType, humanize.Bytes(uint64(len(p.Data))))
}

// containers the upstream decodes even though content sniffing reports them as video.
var audioContainers = map[string]bool{
	"video/webm": true,
	"video/mp4":  true,
}

// IsAudio reports whether a detected media type is acceptable as audio input.
func IsAudio(mediaType string) bool {
	base := strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0])
	return strings.HasPrefix(base, "audio/") || audioContainers[base]
}

// Detect sniffs the media type of data.
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

// DetectFile sniffs the media type of the file at path without reading it all.
func DetectFile(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect media type: %w", err)
	}
	return mt.String(), nil
}

// ReadFile loads the file at path into a payload. The file must be audio.
func ReadFile(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("read audio file: %w", err)
	}
	mediaType := Detect(data)
	if !IsAudio(mediaType) {
		return Payload{}, fmt.Errorf("%s: %w (detected %s)", filepath.Base(path), ErrNotAudio, mediaType)
	}
	return Payload{Data: data, MediaType: mediaType, Filename: filepath.Base(path)}, nil
}
