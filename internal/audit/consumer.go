package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads audit events from the queue and writes one structured
// line per event to its sink logger, usually a rotated file.
type Consumer struct {
	url      string
	exchange string
	queue    string
	sink     *zap.Logger
	logger   *zap.Logger
}

// NewConsumer builds a Consumer.  sink receives the audit lines and logger
// the consumer's own diagnostics.
func NewConsumer(url, exchange, queue string, sink, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{url: url, exchange: exchange, queue: queue, sink: sink, logger: logger}
}

// Run consumes until ctx is done, reconnecting with backoff.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("audit consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if err := c.consume(ctx, conn); err != nil {
			c.logger.Warn("audit consume loop ended", zap.Error(err))
		}
		_ = conn.Close()
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("audit consumer qos", zap.Error(err))
	}
	if err := Declare(ch, c.exchange, c.queue); err != nil {
		return fmt.Errorf("declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.logger.Warn("audit message rejected", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message and writes it to the sink.
func (c *Consumer) Handle(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return errors.New("event without id or type")
	}
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.Uint64("user_id", ev.UserID),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.BookingID != nil {
		fields = append(fields, zap.Uint64("booking_id", *ev.BookingID))
	}
	if ev.CreditID != nil {
		fields = append(fields, zap.Uint64("credit_id", *ev.CreditID))
	}
	if ev.AmountCents != 0 {
		fields = append(fields, zap.Int64("amount_cents", ev.AmountCents))
	}
	if ev.CouponCode != "" {
		fields = append(fields, zap.String("coupon_code", ev.CouponCode))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	c.sink.Info(ev.Type, fields...)
	return nil
}
