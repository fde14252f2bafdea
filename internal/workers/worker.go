// Package workers polls the task queue and dispatches claimed tasks to
// registered handlers.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supplyline/catalog-service/internal/taskqueue"
)

type Config struct {
	WorkerID   string
	TaskTypes  []string
	MaxTasks   int
	NumWorkers int
	PollDelay  time.Duration
}

type Handler func(context.Context, []byte) error

type Worker struct {
	queue    *taskqueue.TaskQueue
	config   Config
	handlers map[string]Handler
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(queue *taskqueue.TaskQueue, config Config) *Worker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.MaxTasks <= 0 {
		config.MaxTasks = 1
	}
	if config.PollDelay <= 0 {
		config.PollDelay = 5 * time.Second
	}
	return &Worker{
		queue:    queue,
		config:   config,
		handlers: make(map[string]Handler),
		stopChan: make(chan struct{}),
	}
}

func (w *Worker) RegisterHandler(taskType string, handler Handler) {
	w.handlers[taskType] = handler
}

func (w *Worker) Start(ctx context.Context) {
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Strs("task_types", w.config.TaskTypes).
		Int("goroutines", w.config.NumWorkers).
		Msg("Starting worker")

	for i := 0; i < w.config.NumWorkers; i++ {
		go w.workerLoop(ctx, i)
	}
}

func (w *Worker) Stop() {
	close(w.stopChan)
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopping, waiting for in-flight tasks")
	w.wg.Wait()
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerID := fmt.Sprintf("%s-%d", w.config.WorkerID, workerNum)

	ticker := time.NewTicker(w.config.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("component", "worker").
				Str("worker_id", workerID).
				Msg("Worker shutting down")
			return

		case <-w.stopChan:
			return

		case <-ticker.C:
			w.processTasks(ctx, workerID)
		}
	}
}

func (w *Worker) processTasks(ctx context.Context, workerID string) {
	tasks, err := w.queue.ClaimTasks(ctx, taskqueue.ClaimTasksInput{
		WorkerID:  workerID,
		TaskTypes: w.config.TaskTypes,
		MaxTasks:  w.config.MaxTasks,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to claim tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	log.Info().
		Str("component", "worker").
		Str("worker_id", workerID).
		Int("task_count", len(tasks)).
		Msg("Worker claimed tasks")

	for _, task := range tasks {
		w.processTask(ctx, workerID, task)
	}
}

func (w *Worker) processTask(ctx context.Context, workerID string, task taskqueue.ClaimedTask) {
	w.wg.Add(1)
	defer w.wg.Done()

	handler, exists := w.handlers[task.TaskType]
	if !exists {
		log.Warn().
			Str("task_type", task.TaskType).
			Msg("No handler for task type")
		if err := w.queue.FailTask(ctx, task.ID, "no handler registered", false); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to fail task")
		}
		return
	}

	if err := w.queue.MarkProcessing(ctx, task.ID); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task as processing")
		return
	}

	log.Info().
		Str("component", "worker").
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Str("task_type", task.TaskType).
		Msg("Worker processing task")

	if handlerErr := handler(ctx, task.Payload); handlerErr != nil {
		if err := w.queue.FailTask(ctx, task.ID, handlerErr.Error(), true); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to record task failure")
		}
		log.Error().
			Str("task_id", task.ID).
			Err(handlerErr).
			Msg("Task failed")
		return
	}

	if err := w.queue.CompleteTask(ctx, task.ID); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task as completed")
		return
	}

	log.Info().
		Str("component", "worker").
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Msg("Worker completed task")
}
