package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ops-reports/internal/platform/metrics"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// natsPublisher is the subset of *nats.Conn the publisher needs.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes report workflow notifications to NATS for
// consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_needed, report_rejected, new_comment, report_shared
//
// All publish operations are non-fatal: errors are logged and counted but
// never propagated, so notification failures never interrupt a transition.
type NotificationPublisher struct {
	nats   natsPublisher
	prefix string
	log    zerolog.Logger
}

// Recipient is one addressee of a notification.
type Recipient struct {
	PersonID string `json:"person_id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Recipients   []Recipient            `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Category     string                 `json:"category"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn disables publishing.
func NewNotificationPublisher(conn natsPublisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: conn, prefix: prefix, log: log}
}

// ConnectNATS dials NATS with reconnects enabled and connection state
// changes logged.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}

// PublishReportEvent publishes a report workflow event.
// Subject: <prefix>.<eventType>
func (p *NotificationPublisher) PublishReportEvent(ctx context.Context, eventType, reportID, actorID string, recipients []repository.Person, payload map[string]interface{}) {
	if p.nats == nil {
		p.log.Debug().Str("event_type", eventType).Msg("notification: publishing disabled")
		return
	}
	if len(recipients) == 0 {
		return
	}

	to := make([]Recipient, len(recipients))
	for i, r := range recipients {
		to[i] = Recipient{PersonID: r.ID, Name: r.Name, Email: r.Email}
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   to,
		ResourceType: "report",
		ResourceID:   reportID,
		IsActionable: eventType == "approval_needed",
		Category:     "report_workflow",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		metrics.ObserveNotification(eventType, err)
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	err = p.nats.Publish(subject, data)
	metrics.ObserveNotification(eventType, err)
	if err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("report_id", reportID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("report_id", reportID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
