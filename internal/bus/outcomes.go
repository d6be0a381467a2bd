package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/relay"
)

// OutcomePublisher publishes every relay outcome on SubjectRelayOutcome.
type OutcomePublisher struct {
	client  *Client
	service string
}

func NewOutcomePublisher(client *Client, service string) *OutcomePublisher {
	return &OutcomePublisher{client: client, service: service}
}

func (p *OutcomePublisher) ObserveOutcome(_ context.Context, o relay.Outcome) error {
	msg := protocol.RelayOutcome{
		RequestID:      o.RequestID,
		Outcome:        o.Kind.String(),
		Status:         o.Status,
		UpstreamStatus: o.UpstreamStatus,
		Filename:       o.Filename,
		MediaType:      o.MediaType,
		Bytes:          o.Bytes,
		TextLength:     o.TextLength,
		DurationMS:     o.Duration.Milliseconds(),
		Timestamp:      o.Timestamp,
		Service:        p.service,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := p.client.conn.Publish(protocol.SubjectRelayOutcome, data); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}
