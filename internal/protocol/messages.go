package protocol

import "time"

// RelayOutcome summarises one relay call for bus consumers. It carries the
// transcript length, never the transcript.
type RelayOutcome struct {
	RequestID      string    `json:"request_id"`
	Outcome        string    `json:"outcome"`
	Status         int       `json:"status"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	MediaType      string    `json:"media_type,omitempty"`
	Bytes          int       `json:"bytes"`
	TextLength     int       `json:"text_length"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service,omitempty"`
}

const (
	SubjectRelayOutcome = "scribe.relay.outcome"
	StreamRelayOutcomes = "SCRIBE_OUTCOMES"
)
