package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	SubjectFileEnriched         = "files.enriched"
	SubjectFileEnrichmentFailed = "files.enrichment_failed"
)

// EnrichmentEvent describes the outcome of one enrichment run
type EnrichmentEvent struct {
	FileID     uuid.UUID `json:"file_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Succeeded  bool      `json:"succeeded"`
	TextLength int       `json:"text_length,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher announces enrichment outcomes to interested consumers
type Publisher interface {
	PublishEnrichment(ctx context.Context, event EnrichmentEvent) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishEnrichment(ctx context.Context, event EnrichmentEvent) error {
	return nil
}

// NATSPublisher publishes events as JSON on core NATS subjects
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to the NATS server at url
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("paggo-backend"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// PublishEnrichment publishes on files.enriched or files.enrichment_failed
func (p *NATSPublisher) PublishEnrichment(ctx context.Context, event EnrichmentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(Subject(event), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Subject returns the subject an event is published on
func Subject(event EnrichmentEvent) string {
	if event.Succeeded {
		return SubjectFileEnriched
	}
	return SubjectFileEnrichmentFailed
}
