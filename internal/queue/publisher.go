package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/event"
)

// DefaultPublishTimeout bounds one dial-and-publish when no timeout is
// configured.
const DefaultPublishTimeout = 3 * time.Second

// Publisher forwards committed admission events to RabbitMQ. It dials per
// message and the bus calls it inline after commit, so every attempt is
// bounded by timeout: a broker outage delays the response by at most that
// much. Failures are returned to the bus, which logs them.
type Publisher struct {
	url     string
	timeout time.Duration
	routes  map[string]string // event name -> queue
	log     *zap.Logger
}

// NewPublisher routes payment.settled to settledQueue and
// reconciliation.required to reconcileQueue. A non-positive timeout means
// DefaultPublishTimeout.
func NewPublisher(url, settledQueue, reconcileQueue string, timeout time.Duration, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		url:     url,
		timeout: timeout,
		routes: map[string]string{
			event.NamePaymentSettled:         settledQueue,
			event.NameReconciliationRequired: reconcileQueue,
		},
		log: log,
	}
}

// Register subscribes p to every event it has a route for.
func (p *Publisher) Register(bus *event.Bus) {
	for name := range p.routes {
		bus.Subscribe(name, p)
	}
}

// Queue returns the queue an event is routed to.
func (p *Publisher) Queue(name string) (string, bool) {
	q, ok := p.routes[name]
	return q, ok
}

// Notify implements event.Subscriber.
func (p *Publisher) Notify(ctx context.Context, ev event.Event) error {
	queue, ok := p.Queue(ev.Name())
	if !ok {
		return fmt.Errorf("no queue for event %q", ev.Name())
	}
	body, err := json.Marshal(envelope{Event: ev.Name(), Data: ev})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	// DefaultDial applies the timeout to the TCP dial and the AMQP handshake.
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.timeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Name(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	p.log.Debug("event published", zap.String("event", ev.Name()), zap.String("queue", queue))
	return nil
}

// envelope is the wire format on both queues.
type envelope struct {
	Event string      `json:"event"`
	Data  event.Event `json:"data"`
}
