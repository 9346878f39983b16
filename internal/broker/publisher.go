package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/order"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange receives one message per committed order status change.
const Exchange = "order_status_fanout"

const publishTimeout = 5 * time.Second

var ErrClosed = errors.New("publisher closed")

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func() (channel, io.Closer, error)

// Publisher sends order.StatusEvent messages to the fanout exchange and
// redials once when it finds its channel closed.
type Publisher struct {
	dial dialFunc

	mu     sync.Mutex
	ch     channel
	conn   io.Closer
	closed bool

	Published metrics.Counter
	Failed    metrics.Counter
}

func NewPublisher(url string) (*Publisher, error) {
	return newPublisher(func() (channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return ch, conn, nil
	})
}

func newPublisher(dial dialFunc) (*Publisher, error) {
	p := &Publisher{dial: dial}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	ch, conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	p.ch, p.conn = ch, conn
	return nil
}

func (p *Publisher) channel() (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.ch == nil || p.ch.IsClosed() {
		if p.conn != nil {
			p.conn.Close()
		}
		p.ch, p.conn = nil, nil
		if err := p.connectLocked(); err != nil {
			return nil, err
		}
	}
	return p.ch, nil
}

func (p *Publisher) PublishStatus(ctx context.Context, ev order.StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ch, err := p.channel()
	if err != nil {
		p.Failed.Inc()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx,
		Exchange, // exchange
		"",       // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         "order.status_changed",
			MessageId:    fmt.Sprintf("%s:%s", ev.OrderID, ev.NewStatus),
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		p.Failed.Inc()
		return fmt.Errorf("publish status event: %w", err)
	}

	p.Published.Inc()
	logger.FromCtx(ctx).Debug("status event published",
		zap.String("layer", "broker"),
		zap.String("order_id", ev.OrderID.String()),
		zap.String("status", string(ev.NewStatus)),
	)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.ch != nil && !p.ch.IsClosed() {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
