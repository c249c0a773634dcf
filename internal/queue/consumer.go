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

	"github.com/netcontrolapp/netcontrol/internal/metrics"
)

// Consumer drains the net event queue and appends one line per event to
// <dir>/net-events.log.
type Consumer struct {
	url   string
	queue string
	dir   string
	log   *zap.Logger
	mu    sync.Mutex // serializes file appends
}

func NewConsumer(url, queueName, dir string, log *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: queueName, dir: dir, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled. Broken
// connections are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("net-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("net-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("net-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		c.settle(d)
	}
	return errors.New("deliveries channel closed")
}

// settle acks a handled delivery. Malformed payloads are dropped; any other
// failure is requeued so the event is retried once the log is writable.
func (c *Consumer) settle(d amqp.Delivery) {
	err := c.Handle(d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedEvent):
		c.log.Error("net-consumer: dropping malformed message", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		c.log.Error("net-consumer: handle message failed, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
	}
}

// ErrMalformedEvent marks a payload that can never be handled.
var ErrMalformedEvent = errors.New("malformed net event")

// Handle decodes one event and appends it to the event log.
func (c *Consumer) Handle(body []byte) error {
	var ev NetEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return fmt.Errorf("%w: event without type", ErrMalformedEvent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "net-events.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	metrics.NetEventsConsumed.WithLabelValues(ev.Type).Inc()
	return nil
}

// FormatLine renders an event as a single log line.
func FormatLine(ev NetEvent) string {
	end := "-"
	if ev.EndTime != nil {
		end = ev.EndTime.UTC().Format(time.RFC3339)
	}
	line := fmt.Sprintf("[%s] %s | net_id=%d | operator=%s (%d) | net=%q | freq=%q | start=%s | end=%s | check_ins=%d",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.NetOperationID, ev.OperatorCallsign, ev.OperatorID,
		ev.NetName, ev.Frequency, ev.StartTime.UTC().Format(time.RFC3339), end, ev.CheckInCount)
	if ev.Occurrences > 0 {
		line += fmt.Sprintf(" | occurrences=%d", ev.Occurrences)
	}
	return line + "\n"
}
