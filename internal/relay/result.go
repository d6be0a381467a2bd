package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Kind tags the outcome of a relay call.
type Kind int

const (
	KindOK Kind = iota
	// KindValidation: no audio in the request. User-correctable.
	KindValidation
	// KindConfiguration: the upstream credential is missing. Operator-correctable.
	KindConfiguration
	// KindUpstream: the upstream API answered with a non-success status.
	KindUpstream
	// KindTransport: network failure, timeout or an unreadable upstream response.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the tagged value returned by Relay.Transcribe. Text is only
// meaningful for KindOK and UpstreamStatus only for KindUpstream.
type Result struct {
	Kind           Kind
	Text           string
	UpstreamStatus int
}

// Status maps the result to the HTTP status returned to the caller.
func (r Result) Status() int {
	switch r.Kind {
	case KindOK:
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the caller-facing error text. Upstream details never appear here.
func (r Result) Message() string {
	switch r.Kind {
	case KindOK:
		return ""
	case KindValidation:
		return "No file provided"
	case KindConfiguration:
		return "API key not configured"
	case KindUpstream:
		return fmt.Sprintf("Transcription failed: %d", r.UpstreamStatus)
	default:
		return "Internal server error"
	}
}

// Outcome summarises one relay call for audit and event consumers.
// It deliberately carries the transcript length, not the transcript.
type Outcome struct {
	RequestID      string
	Kind           Kind
	Status         int
	UpstreamStatus int
	Filename       string
	MediaType      string
	Bytes          int
	TextLength     int
	Duration       time.Duration
	Timestamp      time.Time
}

// Observer is notified after every relay call.
type Observer interface {
	ObserveOutcome(ctx context.Context, outcome Outcome) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, outcome Outcome) error

func (f ObserverFunc) ObserveOutcome(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

type requestIDKey struct{}

// WithRequestID attaches the request id used in logs and outcomes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
