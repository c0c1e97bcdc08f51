// Package client holds outbound collaborators, currently the NATS
// notification publisher.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Permit workflow event types published to NATS.
const (
	EventPermitCreated    = "permit_created"
	EventApprovalRequired = "approval_required"
	EventPermitApproved   = "permit_approved"
	EventPermitReturned   = "permit_returned"
	EventPermitEdited     = "permit_edited"
	EventPermitDeleted    = "permit_deleted"
)

// NotificationPublisher publishes permit workflow events for
// consumption by the notifications service.
//
// Subject convention: notifications.permits.<event_type>
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt workflow
// operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS. An empty URL returns a
// disabled publisher whose methods are no-ops.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	if url == "" {
		return &NotificationPublisher{log: log}, nil
	}
	conn, err := nats.Connect(url, nats.Name("be-permits"))
	if err != nil {
		return nil, err
	}
	return &NotificationPublisher{conn: conn, log: log}, nil
}

// Close drains the underlying connection.
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishPermitEvent publishes a permit workflow event.
// Subject: notifications.permits.<eventType>
func (p *NotificationPublisher) PublishPermitEvent(eventType, permitID, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "permit",
		Severity:     "info",
		Category:     "permit_workflow",
		ResourceID:   permitID,
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.permits.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("permit_id", permitID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("permit_id", permitID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
