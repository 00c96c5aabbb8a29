// Package events publishes finished ingestion jobs to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is where job events go unless configured otherwise.
const DefaultSubject = "ingest.jobs.finished"

// Publisher is the part of *nats.Conn the observer uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Observer publishes every core.JobEvent as JSON. Publish failures are
// logged and never fail the ingestion.
type Observer struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

var _ core.Observer = (*Observer)(nil)

func NewObserver(pub Publisher, subject string, logger *slog.Logger) *Observer {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{pub: pub, subject: subject, logger: logger}
}

// Subject returns the subject events are published on.
func (o *Observer) Subject() string {
	return o.subject
}

// JobFinished implements core.Observer.
func (o *Observer) JobFinished(_ context.Context, ev core.JobEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Error("encode job event", "error", err, "job_id", ev.JobID)
		return
	}
	if err := o.pub.Publish(o.subject, data); err != nil {
		o.logger.Warn("publish job event",
			"error", err,
			"subject", o.subject,
			"job_id", ev.JobID,
			"outcome", ev.Outcome,
		)
	}
}

// Connect dials NATS with reconnect logging.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
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
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
