// Package rabbit carries asset jobs over RabbitMQ using the delayed-message
// exchange plugin for retry backoff.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/queue"
	"github.com/eventdesk/registration-system/internal/metrics"
)

const attemptHeader = "x-attempt"

// Config holds the broker settings.
type Config struct {
	URL         string
	Exchange    string
	Queue       string
	MaxAttempts int
}

// publisher is the part of *amqp.Channel the client publishes through.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Client publishes and consumes asset jobs. It implements ports.AssetQueue.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      publisher
	exchange string
	queue    string
	policy   queue.RetryPolicy
	log      zerolog.Logger

	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// Dial connects and declares the delayed exchange, the durable queue and
// their binding.
func Dial(cfg Config, log zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	c := &Client{
		conn:     conn,
		channel:  ch,
		pub:      ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		policy:   queue.DefaultRetryPolicy(cfg.MaxAttempts),
		log:      log,
	}

	if err := c.declare(); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Str("exchange", cfg.Exchange).Str("queue", cfg.Queue).Msg("rabbitmq initialized")
	return c, nil
}

func (c *Client) declare() error {
	args := amqp.Table{"x-delayed-type": "direct"}
	if err := c.channel.ExchangeDeclare(c.exchange, "x-delayed-message", true, false, false, false, args); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	// one unacked job per consumer keeps retries ordered behind their delay
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Close releases the channel and the connection.
func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info().Msg("rabbitmq connection closed")
}

// Ping reports whether the broker connection is still open.
func (c *Client) Ping(context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: %w: connection closed", domain.ErrUnavailable)
	}
	return nil
}

// Enqueue publishes job for immediate delivery.
func (c *Client) Enqueue(ctx context.Context, job ports.AssetJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	return c.publish(ctx, job, 0)
}

func (c *Client) publish(ctx context.Context, job ports.AssetJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode asset job: %w", err)
	}

	headers := amqp.Table{attemptHeader: int32(job.Attempt)}
	if delay > 0 {
		headers["x-delay"] = int32(delay / time.Millisecond)
	}

	c.mu.Lock()
	err = c.pub.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      headers,
	})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish asset job: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// Consume starts delivering jobs to handler until ctx is cancelled or the
// channel closes.
func (c *Client) Consume(ctx context.Context, handler ports.AssetJobHandler) error {
	msgs, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	go func() {
		for d := range msgs {
			c.handle(ctx, handler, d)
		}
	}()

	c.log.Info().Str("queue", c.queue).Msg("started consuming asset jobs")
	return nil
}

// handle runs one delivery. Failed jobs are republished with the next attempt
// number and a delay, and the original delivery is acked.
func (c *Client) handle(ctx context.Context, handler ports.AssetJobHandler, d amqp.Delivery) {
	var job ports.AssetJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.TicketNumber == "" {
		c.log.Error().Err(err).Msg("discarding malformed asset job")
		metrics.AssetJobsDroppedTotal.Inc()
		_ = d.Nack(false, false)
		return
	}
	if n, ok := d.Headers[attemptHeader].(int32); ok && int(n) > job.Attempt {
		job.Attempt = int(n)
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}

	err := handler.Process(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	next, delay, retry := c.policy.Next(job, err)
	if !retry {
		metrics.AssetJobsDroppedTotal.Inc()
		c.log.Error().Err(err).Str("ticket_number", job.TicketNumber).Int("attempt", job.Attempt).Msg("asset job dropped")
		_ = d.Ack(false)
		return
	}

	if perr := c.publish(ctx, next, delay); perr != nil {
		c.log.Error().Err(perr).Str("ticket_number", job.TicketNumber).Msg("asset retry not published, requeueing")
		_ = d.Nack(false, true)
		return
	}
	c.log.Warn().Err(err).Str("ticket_number", job.TicketNumber).Int("attempt", job.Attempt).Dur("retry_in", delay).Msg("asset job failed, retrying")
	_ = d.Ack(false)
}
