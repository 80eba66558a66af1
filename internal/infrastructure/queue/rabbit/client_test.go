package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/queue"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	err  error
	sent []published
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

// fakeAck records the outcome of a delivery.
type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

type handlerFunc func(ctx context.Context, job ports.AssetJob) error

func (f handlerFunc) Process(ctx context.Context, job ports.AssetJob) error { return f(ctx, job) }

func newTestClient(pub *fakePublisher, maxAttempts int) *Client {
	return &Client{
		pub:      pub,
		exchange: "assets.delayed",
		queue:    "assets",
		policy:   queue.RetryPolicy{MaxAttempts: maxAttempts, Base: time.Second, Max: 10 * time.Second},
		log:      zerolog.Nop(),
	}
}

func delivery(t *testing.T, ack *fakeAck, job ports.AssetJob) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
		Headers:      amqp.Table{attemptHeader: int32(job.Attempt)},
	}
}

func TestEnqueue_PublishesJob(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, 3)

	require.NoError(t, c.Enqueue(context.Background(), ports.AssetJob{TicketNumber: "T-1"}))
	require.Len(t, pub.sent, 1)

	sent := pub.sent[0]
	assert.Equal(t, "assets.delayed", sent.exchange)
	assert.Equal(t, "assets", sent.key)
	assert.Equal(t, int32(1), sent.msg.Headers[attemptHeader])
	assert.NotContains(t, sent.msg.Headers, "x-delay")

	var job ports.AssetJob
	require.NoError(t, json.Unmarshal(sent.msg.Body, &job))
	assert.Equal(t, ports.AssetJob{TicketNumber: "T-1", Attempt: 1}, job)
}

func TestEnqueue_BrokerDown(t *testing.T) {
	c := newTestClient(&fakePublisher{err: amqp.ErrClosed}, 3)

	err := c.Enqueue(context.Background(), ports.AssetJob{TicketNumber: "T-1"})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestHandle_Success(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, 3)
	ack := &fakeAck{}

	var got ports.AssetJob
	c.handle(context.Background(), handlerFunc(func(_ context.Context, job ports.AssetJob) error {
		got = job
		return nil
	}), delivery(t, ack, ports.AssetJob{TicketNumber: "T-1", Attempt: 1}))

	assert.True(t, ack.acked)
	assert.Equal(t, "T-1", got.TicketNumber)
	assert.Empty(t, pub.sent)
}

func TestHandle_FailureRepublishesWithDelay(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, 3)
	ack := &fakeAck{}

	c.handle(context.Background(), handlerFunc(func(context.Context, ports.AssetJob) error {
		return errors.New("disk full")
	}), delivery(t, ack, ports.AssetJob{TicketNumber: "T-1", Attempt: 2}))

	assert.True(t, ack.acked)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, int32(3), pub.sent[0].msg.Headers[attemptHeader])
	assert.Equal(t, int32(2000), pub.sent[0].msg.Headers["x-delay"])
}

func TestHandle_ExhaustedIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, 3)
	ack := &fakeAck{}

	c.handle(context.Background(), handlerFunc(func(context.Context, ports.AssetJob) error {
		return errors.New("disk full")
	}), delivery(t, ack, ports.AssetJob{TicketNumber: "T-1", Attempt: 3}))

	assert.True(t, ack.acked)
	assert.Empty(t, pub.sent)
}

func TestHandle_RepublishFailureRequeues(t *testing.T) {
	c := newTestClient(&fakePublisher{err: amqp.ErrClosed}, 3)
	ack := &fakeAck{}

	c.handle(context.Background(), handlerFunc(func(context.Context, ports.AssetJob) error {
		return errors.New("disk full")
	}), delivery(t, ack, ports.AssetJob{TicketNumber: "T-1", Attempt: 1}))

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestHandle_MalformedBody(t *testing.T) {
	c := newTestClient(&fakePublisher{}, 3)
	ack := &fakeAck{}

	called := false
	c.handle(context.Background(), handlerFunc(func(context.Context, ports.AssetJob) error {
		called = true
		return nil
	}), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	assert.False(t, called)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
}
