// Package events publishes domain events to NATS JetStream for dashboard
// consumers. Publishing is optional and fire-and-forget: the pipeline never
// fails because an event could not be published.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// Domain event names.
const (
	EventLeadCreated         = "lead.created"
	EventLeadClaimed         = "lead.claimed"
	EventMatchExpired        = "match.expired"
	EventSubscriptionUpdated = "firm.subscription.updated"
)

// Publisher emits domain events. The zero-value-like disabled publisher is
// returned when no NATS URL is configured.
type Publisher struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
	enabled       bool
}

// NewDisabledPublisher returns a publisher whose Publish is a no-op.
func NewDisabledPublisher() *Publisher {
	return &Publisher{enabled: false}
}

// NewPublisher connects to NATS and ensures the stream exists.
func NewPublisher(url, streamName, subjectPrefix string, maxAge time.Duration) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:            nc,
		js:            js,
		subjectPrefix: subjectPrefix,
		enabled:       true,
	}

	streamConfig := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
	}
	if err := p.setupStream(streamConfig); err != nil {
		nc.Close()
		return nil, err
	}

	return p, nil
}

// setupStream creates the stream, or updates it when the desired config drifted.
func (p *Publisher) setupStream(streamConfig *nats.StreamConfig) error {
	stream, err := p.js.StreamInfo(streamConfig.Name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		if _, err = p.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		logger.Log.Info("Created stream",
			zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects))
		return nil
	}

	if !utils.StreamConfigEqual(stream.Config, *streamConfig) {
		if _, err = p.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream '%s': %w", streamConfig.Name, err)
		}
		logger.Log.Info("Updated stream",
			zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects))
	}
	return nil
}

// envelope is the wire shape of every published event.
type envelope struct {
	Event      string      `json:"event"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Publish emits one event. Failures are logged and counted, never returned:
// the pipeline's durable state lives in Postgres, events are advisory.
func (p *Publisher) Publish(ctx context.Context, event string, payload interface{}) {
	if !p.enabled {
		return
	}

	subject := p.subjectPrefix + "." + event
	data := utils.MustMarshalJSON(envelope{
		Event:      event,
		OccurredAt: utils.FormatISO8601(utils.Now()),
		Payload:    payload,
	})

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish domain event",
			zap.String("event", event),
			zap.String("subject", subject),
			zap.Error(err))
		observer.IncEventPublished(event, "error")
		return
	}
	observer.IncEventPublished(event, "published")
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if !p.enabled || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		logger.Log.Warn("Failed to drain NATS connection", zap.Error(err))
	}
}
