package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects for wager lifecycle events. disbursement_failed is the one
// operationally worth alerting on: it implies stuck funds.
const (
	SubjectWagerCreated       = "rps.wager.created"
	SubjectWagerTaken         = "rps.wager.taken"
	SubjectWagerResolved      = "rps.wager.resolved"
	SubjectDisbursementFailed = "rps.wager.disbursement_failed"
)

// WagerEvent is the JSON payload published for every lifecycle change.
type WagerEvent struct {
	WagerID   string    `json:"wager_id"`
	Winner    string    `json:"winner,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher pushes wager lifecycle events to NATS. A nil Publisher is
// valid and publishes nothing, so NATS stays optional.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to the NATS server. An empty URL disables
// publishing.
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		logrus.Info("NATS not configured, event publishing disabled")
		return nil, nil
	}

	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}

	logrus.WithField("url", url).Info("NATS event publisher connected")
	return &Publisher{conn: conn}, nil
}

// Publish sends one event. Publishing is best-effort: a failure is
// logged, never propagated, because events must not block the money
// path.
func (p *Publisher) Publish(subject string, event WagerEvent) {
	if p == nil || p.conn == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).WithField("subject", subject).Error("Failed to marshal wager event")
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		logrus.WithError(err).WithField("subject", subject).Warn("Failed to publish wager event")
		return
	}
	logrus.WithFields(logrus.Fields{
		"subject":  subject,
		"wager_id": event.WagerID,
	}).Debug("Wager event published")
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
