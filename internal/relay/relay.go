// Package relay forwards one audio payload to the external speech-recognition
// API and normalizes the answer into a tagged Result.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/audio"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/relay"

// Relay is stateless across calls; it is safe for concurrent use.
type Relay struct {
	upstream Upstream
	apiKey   func() string
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	clock    func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// New creates a relay. apiKey is consulted on every call; timeout bounds the
// outbound request (zero means no bound).
func New(upstream Upstream, apiKey func() string, timeout time.Duration, logger *slog.Logger) *Relay {
	r := &Relay{
		upstream: upstream,
		apiKey:   apiKey,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "relay")),
		tracer:   otel.Tracer(instrumentationName),
		clock:    time.Now,
	}
	if err := r.initMetrics(); err != nil {
		r.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return r
}

func (r *Relay) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	r.requests, err = meter.Int64Counter("scribe.relay.requests",
		metric.WithDescription("Relay calls by outcome"))
	if err != nil {
		return err
	}
	r.duration, err = meter.Float64Histogram("scribe.relay.duration",
		metric.WithDescription("Relay call duration"),
		metric.WithUnit("s"))
	return err
}

// AddObserver registers o to receive an Outcome after every call.
func (r *Relay) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Transcribe relays a single payload. A nil payload is a validation failure.
func (r *Relay) Transcribe(ctx context.Context, payload *audio.Payload) Result {
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
	}
	start := r.clock()

	ctx, span := r.tracer.Start(ctx, "relay.transcribe")
	defer span.End()

	res := r.transcribe(ctx, payload)
	elapsed := r.clock().Sub(start)

	span.SetAttributes(
		attribute.String("relay.request_id", requestID),
		attribute.String("relay.outcome", res.Kind.String()),
		attribute.Int("http.response.status_code", res.Status()),
	)
	if res.Kind != KindOK {
		span.SetStatus(codes.Error, res.Message())
	}
	r.recordMetrics(ctx, res, elapsed)

	outcome := Outcome{
		RequestID:      requestID,
		Kind:           res.Kind,
		Status:         res.Status(),
		UpstreamStatus: res.UpstreamStatus,
		TextLength:     len(res.Text),
		Duration:       elapsed,
		Timestamp:      start.UTC(),
	}
	if payload != nil {
		outcome.Filename = payload.Filename
		outcome.MediaType = payload.MediaType
		outcome.Bytes = payload.Size()
	}
	// observers still record calls whose client went away
	r.notify(context.WithoutCancel(ctx), outcome)
	return res
}

func (r *Relay) transcribe(ctx context.Context, payload *audio.Payload) (res Result) {
	log := r.logger.With(slog.String("request_id", RequestIDFrom(ctx)))
	defer func() {
		if p := recover(); p != nil {
			log.Error("transcription error", slog.String("panic", fmt.Sprint(p)))
			res = Result{Kind: KindTransport}
		}
	}()

	if payload == nil {
		return Result{Kind: KindValidation}
	}

	apiKey := ""
	if r.apiKey != nil {
		apiKey = r.apiKey()
	}
	if apiKey == "" {
		log.Error("upstream API key is not configured")
		return Result{Kind: KindConfiguration}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.upstream.Transcribe(callCtx, apiKey, *payload)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode > 0 {
			log.Error("upstream API error",
				slog.Int("status", statusErr.StatusCode),
				slog.String("body", statusErr.Body))
			return Result{Kind: KindUpstream, UpstreamStatus: statusErr.StatusCode}
		}
		log.Error("transcription error", slogError(err))
		return Result{Kind: KindTransport}
	}

	log.Info("transcription complete",
		slog.String("payload", payload.String()),
		slog.Int("text_length", len(text)))
	return Result{Kind: KindOK, Text: text}
}

func (r *Relay) recordMetrics(ctx context.Context, res Result, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", res.Kind.String()))
	if r.requests != nil {
		r.requests.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (r *Relay) notify(ctx context.Context, outcome Outcome) {
	r.mu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()

	for _, o := range observers {
		if err := o.ObserveOutcome(ctx, outcome); err != nil {
			r.logger.Warn("outcome observer failed",
				slog.String("request_id", outcome.RequestID),
				slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
