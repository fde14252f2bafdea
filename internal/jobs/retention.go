// Package jobs holds scheduled housekeeping for the sync tables.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/taskqueue"
)

// Retention trims finished previews, old history entries, and completed
// queue tasks past their configured windows.
type Retention struct {
	previews *database.PreviewRepo
	history  *database.HistoryRepo
	queue    *taskqueue.TaskQueue

	previewDays int
	historyDays int
	stopChan    chan struct{}
}

func NewRetention(previews *database.PreviewRepo, history *database.HistoryRepo, queue *taskqueue.TaskQueue, previewDays, historyDays int) *Retention {
	if previewDays <= 0 {
		previewDays = 7
	}
	if historyDays <= 0 {
		historyDays = 90
	}
	return &Retention{
		previews:    previews,
		history:     history,
		queue:       queue,
		previewDays: previewDays,
		historyDays: historyDays,
		stopChan:    make(chan struct{}),
	}
}

// RunOnce executes one retention pass. The three sweeps touch disjoint
// tables and run concurrently; each logs its own failure.
func (j *Retention) RunOnce(ctx context.Context) {
	var previews, entries, tasks int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		previews, err = j.previews.DeleteOlderThan(gctx, time.Now().AddDate(0, 0, -j.previewDays))
		if err != nil {
			log.Error().Err(err).Msg("Failed to delete old previews")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entries, err = j.history.DeleteOlderThan(gctx, time.Now().AddDate(0, 0, -j.historyDays))
		if err != nil {
			log.Error().Err(err).Msg("Failed to delete old history")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tasks, err = j.queue.CleanupOldTasks(gctx, j.previewDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to cleanup old tasks")
		}
		return nil
	})
	_ = g.Wait()

	if previews > 0 || entries > 0 || tasks > 0 {
		log.Info().
			Int64("previews", previews).
			Int64("history", entries).
			Int64("tasks", tasks).
			Msg("Retention pass complete")
	}
}

// Start runs retention on the given interval until stopped.
func (j *Retention) Start(ctx context.Context, interval time.Duration) {
	log.Info().
		Dur("interval", interval).
		Int("preview_days", j.previewDays).
		Int("history_days", j.historyDays).
		Msg("Starting retention job")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *Retention) Stop() {
	close(j.stopChan)
}
