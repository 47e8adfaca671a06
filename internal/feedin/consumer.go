// Package feedin consumes normalized security incidents from NATS and hands
// them to the correlation service. Feed scanners publish one incident per
// message on vendorwatch.incidents.<tenant>.
package feedin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
)

// SubjectPrefix is the subject root feed scanners publish to. The final token
// is the tenant id.
const SubjectPrefix = "vendorwatch.incidents"

const drainTimeout = 10 * time.Second

// Ingestor receives parsed incidents. Satisfied by correlate.Service.
type Ingestor interface {
	UpsertIncident(ctx context.Context, inc *incident.Incident) (*incident.Incident, bool, error)
}

// Metrics tracks feed consumption.
type Metrics struct {
	MessagesTotal *prometheus.CounterVec
}

// NewMetrics registers feed consumer metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorwatch_feed_messages_total",
			Help: "Feed messages consumed, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.MessagesTotal)
	return m
}

// Consumer subscribes to the incident feed subjects on a queue group so
// multiple replicas share the stream.
type Consumer struct {
	nc       *nats.Conn
	ingestor Ingestor
	queue    string
	metrics  *Metrics
	logger   log.Logger

	sub *nats.Subscription
}

// NewConsumer wires a feed consumer. A nil metrics disables counting.
func NewConsumer(nc *nats.Conn, ingestor Ingestor, queue string, metrics *Metrics, logger log.Logger) *Consumer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Consumer{
		nc:       nc,
		ingestor: ingestor,
		queue:    queue,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains the
// subscription so in-flight messages finish.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.nc.QueueSubscribe(SubjectPrefix+".>", c.queue, func(msg *nats.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", SubjectPrefix, err)
	}
	c.sub = sub
	c.logger.Info(ctx, "subscribed to incident feed", "subject", SubjectPrefix+".>", "queue", c.queue)

	<-ctx.Done()

	// Drain lets handlers for already-delivered messages complete.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	for sub.IsValid() {
		select {
		case <-drainCtx.Done():
			return fmt.Errorf("drain subscription: %w", drainCtx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	var inc incident.Incident
	if err := json.Unmarshal(msg.Data, &inc); err != nil {
		c.count("invalid")
		c.logger.Warn(ctx, "dropping malformed feed message",
			"subject", msg.Subject, "bytes", len(msg.Data), "error", err.Error())
		return
	}

	// The subject's tenant token wins over the payload so a scanner cannot
	// publish into another tenant's stream.
	if tenant := tenantFromSubject(msg.Subject); tenant != "" {
		inc.TenantID = tenant
	}

	stored, created, err := c.ingestor.UpsertIncident(ctx, &inc)
	if err != nil {
		c.count("error")
		c.logger.Error(ctx, err, "feed ingest failed",
			"subject", msg.Subject, "external_id", inc.ExternalID)
		return
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	c.count(outcome)
	c.logger.Info(ctx, "ingested feed incident",
		"incident_id", stored.ID,
		"tenant_id", stored.TenantID,
		"external_id", stored.ExternalID,
		"severity", string(stored.Severity),
		"created", created,
	)
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(outcome).Inc()
	}
}

func tenantFromSubject(subject string) string {
	if len(subject) <= len(SubjectPrefix)+1 {
		return ""
	}
	return subject[len(SubjectPrefix)+1:]
}
