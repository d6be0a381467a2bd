package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// RecordingFilename is the name given to microphone payloads.
	RecordingFilename = "recording.wav"
	// WAVMediaType labels microphone payloads.
	WAVMediaType = "audio/wav"
)

// EncodeWAV concatenates little-endian 16-bit PCM chunks into a WAV payload.
// Zero chunks produce a header-only file with no samples.
func EncodeWAV(chunks [][]byte, sampleRate, channels int) (Payload, error) {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	pcm := make([]byte, 0, total)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}
	// a trailing odd byte is a torn sample from a killed capture process
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	file, err := os.CreateTemp("", "scribe_rec_*.wav")
	if err != nil {
		return Payload{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, sampleRate, channels); err != nil {
		return Payload{}, err
	}
	data, err := os.ReadFile(file.Name())
	if err != nil {
		return Payload{}, fmt.Errorf("read wav: %w", err)
	}
	return Payload{Data: data, MediaType: WAVMediaType, Filename: RecordingFilename}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
