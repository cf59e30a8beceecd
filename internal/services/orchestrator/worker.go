package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/queue"
)

// WorkerPool pulls run messages off the durable queue and executes them.
// Messages are acked only after ExecuteRun returns cleanly; a crashed or
// erroring worker leaves the message for redelivery after the visibility
// timeout, and the queue drops poison messages past their receive limit.
type WorkerPool struct {
	orchestrator *Orchestrator
	queue        interfaces.RunQueue
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool of run workers
func NewWorkerPool(o *Orchestrator, q interfaces.RunQueue, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &WorkerPool{
		orchestrator: o,
		queue:        q,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info().Int("concurrency", p.concurrency).Msg("Starting run workers")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight runs to settle
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Run workers stopped")
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ack, err := p.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrNoMessage) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.pollInterval):
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn().Err(err).Int("worker", id).Msg("Queue receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		if err := p.orchestrator.ExecuteRun(ctx, msg.RunID); err != nil {
			// Leave the message unacked; it becomes visible again after
			// the visibility timeout and is dropped past max receives
			p.logger.Warn().Err(err).Str("run", msg.RunID).Int("worker", id).Msg("Run execution failed")
			continue
		}

		if err := ack(); err != nil {
			p.logger.Warn().Err(err).Str("run", msg.RunID).Msg("Failed to ack run message")
		}
	}
}
