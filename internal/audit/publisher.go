package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher buffers events in memory and publishes them from Run to a
// durable fanout exchange.  When the buffer is full new events are dropped
// and counted.
type Publisher struct {
	url      string
	exchange string
	queue    string
	events   chan Event
	dropped  atomic.Int64
	logger   *zap.Logger
}

// NewPublisher returns a Publisher with room for buffer pending events.
func NewPublisher(url, exchange, queue string, buffer int, logger *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		url:      url,
		exchange: exchange,
		queue:    queue,
		events:   make(chan Event, buffer),
		logger:   logger,
	}
}

// Emit queues ev without blocking.
func (p *Publisher) Emit(_ context.Context, ev Event) {
	select {
	case p.events <- ev:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("audit buffer full, event dropped", zap.String("type", ev.Type), zap.Int64("dropped", n))
	}
}

// Dropped returns how many events were discarded, either because the
// buffer was full or because publishing them failed.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run connects to the broker and drains the buffer until ctx is done,
// reconnecting with backoff when the connection fails.
func (p *Publisher) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.logger.Warn("audit publisher dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if err := p.serve(ctx, conn); err != nil {
			p.logger.Warn("audit publisher disconnected", zap.Error(err))
		}
		_ = conn.Close()
	}
}

func (p *Publisher) serve(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()
	if err := Declare(ch, p.exchange, p.queue); err != nil {
		return err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			return err
		case ev := <-p.events:
			if err := p.forward(ctx, ch, ev); err != nil {
				return err
			}
		}
	}
}

// forward publishes one buffered event.  A failed event is counted as
// dropped; the caller reconnects.
func (p *Publisher) forward(ctx context.Context, ch channel, ev Event) error {
	if err := p.publish(ctx, ch, ev); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("audit publish failed", zap.Error(err), zap.String("event_id", ev.ID))
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, ch channel, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(pctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

// Declare creates the durable exchange and queue and binds them.
func Declare(ch *amqp.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(queue, "", exchange, false, nil)
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
