package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher routes asset jobs to a fixed set of in-process workers using
// consistent hashing on the ticket number, so jobs for one ticket run in order.
type Dispatcher struct {
	workers []chan ports.AssetJob
	policy  RetryPolicy
	log     zerolog.Logger

	// pending tracks retries waiting on their backoff timer.
	pending sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, policy RetryPolicy, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy(0)
	}
	d := &Dispatcher{
		workers: make([]chan ports.AssetJob, numWorkers),
		policy:  policy,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.AssetJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, handler ports.AssetJobHandler) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, handler, i, ch)
	}
}

// Enqueue hands a job to the worker responsible for its ticket. It never
// blocks: a full shard returns domain.ErrUnavailable.
func (d *Dispatcher) Enqueue(ctx context.Context, job ports.AssetJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}

	idx := d.shardIndex(job.TicketNumber)
	select {
	case d.workers[idx] <- job:
		metrics.AssetQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	default:
		metrics.AssetJobsDroppedTotal.Inc()
		return fmt.Errorf("asset queue shard %d full: %w", idx, domain.ErrUnavailable)
	}
}

// Wait blocks until retries scheduled before the workers stopped have fired.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// shardIndex maps a ticket number deterministically to a worker index.
func (d *Dispatcher) shardIndex(ticketNumber string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketNumber))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, handler ports.AssetJobHandler, id int, ch <-chan ports.AssetJob) {
	workerID := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			metrics.AssetQueueDepth.WithLabelValues(workerID).Set(float64(len(ch)))
			if err := handler.Process(ctx, job); err != nil {
				d.retry(ctx, job, err, id)
			}
		}
	}
}

func (d *Dispatcher) retry(ctx context.Context, job ports.AssetJob, err error, workerID int) {
	next, delay, ok := d.policy.Next(job, err)
	if !ok {
		metrics.AssetJobsDroppedTotal.Inc()
		d.log.Error().Err(err).
			Str("ticket_number", job.TicketNumber).
			Int("attempt", job.Attempt).
			Int("worker_id", workerID).
			Msg("asset job dropped")
		return
	}

	d.log.Warn().Err(err).
		Str("ticket_number", job.TicketNumber).
		Int("attempt", job.Attempt).
		Dur("retry_in", delay).
		Msg("asset job failed, retrying")

	d.pending.Add(1)
	time.AfterFunc(delay, func() {
		defer d.pending.Done()
		if ctx.Err() != nil {
			return
		}
		if err := d.Enqueue(ctx, next); err != nil {
			d.log.Error().Err(err).Str("ticket_number", next.TicketNumber).Msg("asset retry not enqueued")
		}
	})
}
