package scheduler

import (
	"context"
	"time"

	"leadflow_backend/internal/sequences/sweeper"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes sweep tasks and runs the sweeper.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper *sweeper.Sweeper
	log     *logger.Logger
}

// NewWorker creates the asynq worker.
func NewWorker(cfg config.SchedulerConfig, sw *sweeper.Sweeper, log *logger.Logger) (*Worker, error) {
	opt, err := RedisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.GetAsynqConcurrency(),
		Queues:      map[string]int{cfg.GetAsynqQueueName(): 1},
		Logger:      asynqLogger{log: log},
	})

	w := &Worker{
		server:  server,
		mux:     asynq.NewServeMux(),
		sweeper: sw,
		log:     log,
	}
	w.mux.HandleFunc(TaskSequenceSweep, w.handleSweep)
	return w, nil
}

// Run starts the worker and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	return w.server.Run(w.mux)
}

func (w *Worker) handleSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSweepPayload(task)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := w.sweeper.Sweep(ctx); err != nil {
		return err
	}
	w.log.Info("sweep completed",
		"enqueued_at", payload.EnqueuedAt,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// asynqLogger adapts the structured logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug("asynq", "message", args) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info("asynq", "message", args) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn("asynq", "message", args) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error("asynq", "message", args) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error("asynq", "message", args) }
