package scheduler

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Dispatcher enqueues a sweep task on a fixed interval. Unique task options
// keep overlapping intervals from stacking sweeps when a worker is slow.
type Dispatcher struct {
	client   *asynq.Client
	queue    string
	interval time.Duration
	log      *logger.Logger
}

// NewDispatcher creates a sweep dispatcher.
func NewDispatcher(client *asynq.Client, cfg config.SchedulerConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:   client,
		queue:    cfg.GetAsynqQueueName(),
		interval: cfg.GetSweepInterval(),
		log:      log,
	}
}

// Run enqueues sweeps until the context is cancelled. The first sweep is
// enqueued immediately so a restart does not wait a full interval.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("sweep dispatcher started", "interval", d.interval.String(), "queue", d.queue)

	d.enqueue(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("sweep dispatcher stopped")
			return
		case <-ticker.C:
			d.enqueue(ctx)
		}
	}
}

func (d *Dispatcher) enqueue(ctx context.Context) {
	task, err := NewSweepTask(time.Now().UTC())
	if err != nil {
		d.log.Error("build sweep task failed", "error", err)
		return
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.Unique(d.interval),
		asynq.MaxRetry(3),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			d.log.Debug("sweep already enqueued, skipping")
			return
		}
		d.log.Error("enqueue sweep failed", "error", err)
		return
	}
	d.log.Debug("sweep enqueued", "task_id", info.ID)
}
