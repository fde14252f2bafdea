// Package sweepers runs periodic maintenance loops alongside the server.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/supplyline/catalog-service/internal/taskqueue"
)

// TaskQueueSweeper periodically recovers tasks abandoned by dead workers.
type TaskQueueSweeper struct {
	queue    *taskqueue.TaskQueue
	logger   *zerolog.Logger
	interval time.Duration
	deadline time.Duration
	stopChan chan struct{}
}

func NewTaskQueueSweeper(queue *taskqueue.TaskQueue, logger *zerolog.Logger, interval, deadline time.Duration) *TaskQueueSweeper {
	return &TaskQueueSweeper{
		queue:    queue,
		logger:   logger,
		interval: interval,
		deadline: deadline,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic recovery sweep.
func (s *TaskQueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting task queue sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Task queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Task queue sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			count, err := s.queue.RecoverOrphans(ctx, s.deadline)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to recover orphaned tasks")
				continue
			}
			if count > 0 {
				s.logger.Info().Int64("recovered", count).Msg("Recovered orphaned tasks")
			}
		}
	}
}

// Stop signals the sweeper to stop.
func (s *TaskQueueSweeper) Stop() {
	close(s.stopChan)
}
