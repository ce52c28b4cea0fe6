package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification/broker"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/sethvargo/go-retry"
)

type Publisher interface {
	Publish(ctx context.Context, ev events.NotificationEvent) error
}

type Job struct {
	Event      events.NotificationEvent
	EnqueuedAt time.Time
}

type Worker struct {
	ID         int
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id, buffer int, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		JobChannel: make(chan Job, buffer),
		Logger:     logger,
	}
}

// Start processes jobs until JobChannel is closed or ctx is done.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case job, ok := <-w.JobChannel:
				if !ok {
					w.Logger.Debug("worker drained", "worker_id", w.ID)
					return
				}
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "event_id", job.Event.ID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type NotifierConfig struct {
	MaxWorkers     int
	JobQueueSize   int
	PublishRetries uint64
	RetryBaseDelay time.Duration
}

// Notifier is the fire-and-forget front of the hub. Jobs for one recipient
// always go to the same worker, so a recipient's events are published in the
// order they were handed to Notify.
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger

	jobQueue   chan Job
	workers    []*Worker
	retries    uint64
	baseDelay  time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	dispatchWg sync.WaitGroup
	once       sync.Once
	closed     atomic.Bool
	mu         sync.RWMutex
}

func NewNotifier(publisher Publisher, config NotifierConfig, logger *slog.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 256
	}

	baseDelay := config.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}

	n := &Notifier{
		publisher: publisher,
		logger:    logger,
		jobQueue:  make(chan Job, jobQueueSize),
		retries:   config.PublishRetries,
		baseDelay: baseDelay,
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < maxWorkers; i++ {
		n.workers = append(n.workers, NewWorker(i, 16, logger))
	}

	n.startWorkerPool()

	return n
}

func (n *Notifier) startWorkerPool() {
	n.once.Do(func() {
		for _, worker := range n.workers {
			worker.Start(n.ctx, &n.wg, n.processJob)
		}

		n.dispatchWg.Add(1)
		go n.dispatch()

		n.logger.Info("notification worker pool started",
			"max_workers", len(n.workers),
			"queue_size", cap(n.jobQueue))
	})
}

// Notify queues ev for publishing. It never blocks and never fails the caller:
// a full queue or a stopped notifier drops the event with a log line.
func (n *Notifier) Notify(ctx context.Context, ev events.NotificationEvent) {
	log := logger.FromOr(ctx, n.logger)

	if err := ev.Validate(); err != nil {
		log.Warn("dropping invalid notification", "error", err)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed.Load() {
		log.Warn("notifier stopped, dropping notification", "event_id", ev.ID, "kind", ev.Kind)
		return
	}

	select {
	case n.jobQueue <- Job{Event: ev, EnqueuedAt: time.Now()}:
		log.Debug("notification queued",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"recipient_id", ev.RecipientID,
			"task_id", ev.TaskID)
	default:
		log.Warn("notification queue full, dropping notification",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"recipient_id", ev.RecipientID)
	}
}

func (n *Notifier) dispatch() {
	defer n.dispatchWg.Done()
	defer func() {
		for _, w := range n.workers {
			close(w.JobChannel)
		}
	}()

	for {
		select {
		case job, ok := <-n.jobQueue:
			if !ok {
				n.logger.Debug("dispatcher drained")
				return
			}
			w := n.workers[shard(job.Event.RecipientID, len(n.workers))]
			select {
			case w.JobChannel <- job:
			case <-n.ctx.Done():
				n.logger.Info("dispatcher shutting down")
				return
			}
		case <-n.ctx.Done():
			n.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func shard(recipientID int64, n int) int {
	if recipientID < 0 {
		recipientID = -recipientID
	}
	return int(recipientID % int64(n))
}

func (n *Notifier) processJob(job Job) {
	ev := job.Event
	backoff := retry.WithMaxRetries(n.retries, retry.NewExponential(n.baseDelay))

	attempts := 0
	err := retry.Do(n.ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := n.publisher.Publish(ctx, ev)
		if errors.Is(err, broker.ErrBrokerUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		n.logger.Error("notification publish failed",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"recipient_id", ev.RecipientID,
			"attempts", attempts,
			"error", err)
		return
	}

	n.logger.Debug("notification published",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"recipient_id", ev.RecipientID,
		"latency_ms", time.Since(job.EnqueuedAt).Milliseconds())
}

// Shutdown stops accepting events and waits for queued ones to be published,
// up to ctx's deadline; after that pending jobs are abandoned.
func (n *Notifier) Shutdown(ctx context.Context) {
	n.logger.Info("shutting down notifier")

	n.mu.Lock()
	if n.closed.CompareAndSwap(false, true) {
		close(n.jobQueue)
	}
	n.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		n.dispatchWg.Wait()
		n.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		n.logger.Warn("notifier shutdown timeout reached, abandoning pending notifications")
	}

	n.cancel()
	<-drained
	n.logger.Info("notifier shutdown complete")
}
