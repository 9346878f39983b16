package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"dispatch-be/internal/order"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	exchanges  []string
	closed     bool
	publishErr error
	declareErr error
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }
func (f *fakeChannel) Close() error   { f.closed = true; return nil }

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error { c.closed = true; return nil }

func dialer(channels ...*fakeChannel) (dialFunc, *int) {
	calls := 0
	return func() (channel, io.Closer, error) {
		if calls >= len(channels) {
			return nil, nil, errors.New("connection refused")
		}
		ch := channels[calls]
		calls++
		return ch, &fakeConn{}, nil
	}, &calls
}

func TestPublisher_PublishStatus(t *testing.T) {
	ch := &fakeChannel{}
	dial, _ := dialer(ch)
	p, err := newPublisher(dial)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_status_fanout:fanout"}, ch.declared)

	driverID := uuid.New()
	ev := order.StatusEvent{
		OrderID:     uuid.New(),
		OrderNumber: 31,
		OldStatus:   order.StatusReady,
		NewStatus:   order.StatusOutForDelivery,
		DriverID:    &driverID,
		ChangedAt:   time.Date(2025, 4, 2, 19, 30, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishStatus(context.Background(), ev))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, Exchange, ch.exchanges[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, ev.OrderID.String()+":out_for_delivery", msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "ready", decoded["old_status"])
	assert.Equal(t, "out_for_delivery", decoded["new_status"])
	assert.Equal(t, driverID.String(), decoded["driver_id"])
	assert.Equal(t, uint64(1), p.Published.Load())
}

func TestPublisher_RedialsClosedChannel(t *testing.T) {
	first, second := &fakeChannel{}, &fakeChannel{}
	dial, calls := dialer(first, second)
	p, err := newPublisher(dial)
	require.NoError(t, err)

	first.closed = true
	require.NoError(t, p.PublishStatus(context.Background(), order.StatusEvent{OrderID: uuid.New(), NewStatus: order.StatusConfirmed}))
	assert.Equal(t, 2, *calls)
	assert.Len(t, second.published, 1)

	second.closed = true
	err = p.PublishStatus(context.Background(), order.StatusEvent{OrderID: uuid.New(), NewStatus: order.StatusReady})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), p.Failed.Load())
}

func TestPublisher_Errors(t *testing.T) {
	t.Run("Declare failure", func(t *testing.T) {
		dial, _ := dialer(&fakeChannel{declareErr: errors.New("access refused")})
		_, err := newPublisher(dial)
		assert.Error(t, err)
	})

	t.Run("Publish failure", func(t *testing.T) {
		dial, _ := dialer(&fakeChannel{publishErr: amqp.ErrClosed})
		p, err := newPublisher(dial)
		require.NoError(t, err)
		err = p.PublishStatus(context.Background(), order.StatusEvent{OrderID: uuid.New()})
		assert.ErrorIs(t, err, amqp.ErrClosed)
	})

	t.Run("Closed publisher", func(t *testing.T) {
		dial, _ := dialer(&fakeChannel{})
		p, err := newPublisher(dial)
		require.NoError(t, err)
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())
		err = p.PublishStatus(context.Background(), order.StatusEvent{OrderID: uuid.New()})
		assert.ErrorIs(t, err, ErrClosed)
	})
}
