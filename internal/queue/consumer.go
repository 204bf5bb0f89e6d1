// Package queue moves committed admission events through RabbitMQ: a
// publisher subscribed to the event bus, and a consumer that appends every
// message to logs/settlement.log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/model"
)

// Consumer reads the settled and reconciliation queues.
type Consumer struct {
	URL    string
	Queues []string
	LogDir string
	Log    *zap.Logger

	mu sync.Mutex // serializes writes to the log file
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set qos failed", zap.Error(err))
	}

	deliveries := make(chan amqp.Delivery)
	var wg sync.WaitGroup
	for _, q := range c.Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	closed := make(chan struct{})
	go func() {
		wg.Wait()
		close(closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errors.New("deliveries channel closed")
		case d := <-deliveries:
			if err := c.Handle(d.Body); err != nil {
				log.Error("handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
				_ = d.Nack(false, false) // do not requeue a message that cannot be parsed
				continue
			}
			_ = d.Ack(false)
		}
	}
}

type rawEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handle decodes one message and appends a single line for it to
// settlement.log under LogDir.
func (c *Consumer) Handle(body []byte) error {
	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	var line string
	switch env.Event {
	case event.NamePaymentSettled:
		var ev event.PaymentSettled
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Event, err)
		}
		line = fmt.Sprintf("[%s] Payment settled | tran_id=%s | payment_id=%d | application_id=%d | batch_id=%d | amount=%s %s\n",
			ev.SettledAt.UTC().Format(time.RFC3339), ev.TranID, ev.PaymentID, ev.ApplicationID, ev.BatchID,
			model.FormatMinor(ev.AmountMinor), ev.Currency)
	case event.NameReconciliationRequired:
		var ev event.ReconciliationRequired
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Event, err)
		}
		line = fmt.Sprintf("[%s] Reconciliation required | case_id=%d | tran_id=%s | application_id=%d | batch_id=%d | reason=%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.CaseID, ev.TranID, ev.ApplicationID, ev.BatchID, ev.Reason)
	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
	return c.append(line)
}

func (c *Consumer) append(line string) error {
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "settlement.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
