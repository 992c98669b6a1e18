// Package notify publishes derived notifications to NATS for external
// delivery services (mail, chat, mobile push).
//
// Subject convention: notifications.dispatch.<event_type>
//
// All publish operations are non-fatal. Errors are logged but never propagated,
// so delivery failures never interrupt event recording. A nil *Publisher
// disables publishing entirely.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"dawin/internal/domain"
)

const defaultSubjectPrefix = "notifications.dispatch"

type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Event is the JSON schema published to NATS.
type Event struct {
	TenantID       string   `json:"tenant_id"`
	NotificationID string   `json:"notification_id"`
	OccurrenceID   string   `json:"occurrence_id"`
	EventType      string   `json:"event_type"`
	Template       string   `json:"template"`
	Channels       []string `json:"channels"`
	Recipients     []string `json:"recipients"`
	OccurredAt     string   `json:"occurred_at,omitempty"`
}

// Connect dials NATS and returns a publisher bound to the connection.
// An empty prefix selects the notifications.dispatch default.
func Connect(url, prefix string, log zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return New(conn, prefix, log), nil
}

// New wraps an existing connection, mainly for tests.
func New(conn *nats.Conn, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix, log: log}
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

// Publish sends one derived notification to NATS. Returns false when the
// publish failed; the caller decides what to record, nothing is retried here.
func (p *Publisher) Publish(n domain.Notification, recipients []string, occurredAt string) bool {
	if p == nil || p.conn == nil {
		return false
	}
	event := Event{
		TenantID:       n.TenantID,
		NotificationID: n.ID,
		OccurrenceID:   n.OccurrenceID,
		EventType:      n.EventType,
		Template:       n.Template,
		Channels:       n.Channels,
		Recipients:     recipients,
		OccurredAt:     occurredAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", n.EventType).Msg("notify: failed to marshal event")
		return false
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, n.EventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("notification_id", n.ID).
			Msg("notify: failed to publish NATS event (non-fatal)")
		return false
	}
	p.log.Debug().
		Str("subject", subject).
		Str("notification_id", n.ID).
		Int("recipients", len(recipients)).
		Msg("notify: event published")
	return true
}

// Enabled reports whether a live connection is attached.
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}
