package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/supplyline/catalog-service/internal/database"
)

// PreviewSweeper returns previews stuck in analyzing or executing to a
// retryable state after their worker stops heartbeating progress.
type PreviewSweeper struct {
	previews *database.PreviewRepo
	logger   *zerolog.Logger
	interval time.Duration
	deadline time.Duration
	stopChan chan struct{}
}

func NewPreviewSweeper(previews *database.PreviewRepo, logger *zerolog.Logger, interval, deadline time.Duration) *PreviewSweeper {
	return &PreviewSweeper{
		previews: previews,
		logger:   logger,
		interval: interval,
		deadline: deadline,
		stopChan: make(chan struct{}),
	}
}

func (s *PreviewSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("deadline", s.deadline).
		Msg("Starting preview sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Preview sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Preview sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			count, err := s.previews.ReclaimStale(ctx, s.deadline)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to reclaim stale previews")
				continue
			}
			if count > 0 {
				s.logger.Info().Int64("reclaimed", count).Msg("Reclaimed stale previews")
			}
		}
	}
}

func (s *PreviewSweeper) Stop() {
	close(s.stopChan)
}
