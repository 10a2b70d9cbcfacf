/**
 * @description
 * Backfill scheduling. The link flow fires backfills without awaiting them;
 * this file provides the two schedulers that make the hand-off supervised
 * instead of a bare goroutine:
 *
 *  - AMQPScheduler publishes tasks to the sync_events exchange; a RabbitMQ
 *    consumer (wired in main) executes them and nacks on failure.
 *  - WorkerPool is the in-process fallback when RabbitMQ is not configured:
 *    a bounded queue drained by a fixed set of workers.
 *
 * Either way a failed backfill is recorded on the account (SYNC_FAILED) by
 * RunBackfill itself, never lost to a console log.
 */

package app

import (
	"context"
	"errors"
	"log"
	"sync"
)

// AMQP wiring names shared by the producer and consumer sides.
const (
	SyncEventsExchange = "sync_events"
	BackfillRoutingKey = "account.backfill.requested"
	BackfillQueue      = "sync_service.backfill"
)

// ErrBackfillQueueFull is returned when the in-process queue cannot accept
// another task without blocking the link request.
var ErrBackfillQueueFull = errors.New("backfill queue is full")

// EventPublisher is the slice of the RabbitMQ producer the scheduler uses.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// AMQPScheduler hands backfill tasks to RabbitMQ.
type AMQPScheduler struct {
	publisher EventPublisher
}

// NewAMQPScheduler wraps a RabbitMQ producer as a backfill scheduler.
func NewAMQPScheduler(publisher EventPublisher) *AMQPScheduler {
	return &AMQPScheduler{publisher: publisher}
}

// Schedule publishes the task for the backfill consumer.
func (s *AMQPScheduler) Schedule(ctx context.Context, task BackfillTask) error {
	return s.publisher.Publish(ctx, SyncEventsExchange, BackfillRoutingKey, task)
}

// WorkerPool executes backfill tasks on a fixed set of in-process workers
// behind a bounded queue.
type WorkerPool struct {
	tasks chan BackfillTask

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewWorkerPool creates a pool with the given queue capacity. Workers do not
// run until Start is called.
func NewWorkerPool(queueSize int) *WorkerPool {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &WorkerPool{tasks: make(chan BackfillTask, queueSize)}
}

// Start launches the workers. run is invoked once per task; its error has
// already been recorded on the account by the time it returns, so the pool
// only logs it.
func (p *WorkerPool) Start(ctx context.Context, workers int, run func(context.Context, BackfillTask) error) {
	if workers <= 0 {
		workers = 2
	}
	p.startOnce.Do(func() {
		for i := 0; i < workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case task, ok := <-p.tasks:
						if !ok {
							return
						}
						if err := run(ctx, task); err != nil {
							log.Printf("level=warn component=backfill_pool msg=\"backfill task failed\" account_id=%s err=%v", task.AccountID, err)
						}
					}
				}
			}()
		}
	})
}

// Schedule enqueues the task without blocking the caller.
func (p *WorkerPool) Schedule(ctx context.Context, task BackfillTask) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackfillQueueFull
	}
}

// Stop closes the queue and waits for in-flight tasks to drain.
func (p *WorkerPool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}
