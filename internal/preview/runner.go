package preview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/metrics"
)

// Store is the persistence surface the analysis runner needs. The pgx
// repository in internal/database satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*database.SyncPreview, error)
	Transition(ctx context.Context, id, from, to string) error
	SetProgress(ctx context.Context, id string, current, total int, message string) error
	Fail(ctx context.Context, id, state, message string) error
	ReplaceChanges(ctx context.Context, previewID string, changes []database.SyncChange) error
}

// Runner drives one preview from draft through analysis to ready, persisting
// progress after every product so the UI can poll it.
type Runner struct {
	store     Store
	generator *Generator
}

func NewRunner(store Store, generator *Generator) *Runner {
	return &Runner{store: store, generator: generator}
}

// Run analyzes the preview's selection. A failure returns the preview to
// draft with the error recorded; the caller can re-trigger analysis.
func (r *Runner) Run(ctx context.Context, previewID string) error {
	p, err := r.store.Get(ctx, previewID)
	if err != nil {
		return fmt.Errorf("loading preview: %w", err)
	}
	if err := r.store.Transition(ctx, previewID, database.PreviewStateDraft, database.PreviewStateAnalyzing); err != nil {
		return err
	}

	changes, err := r.generator.Run(ctx, p.ProductIDs, func(current, total int, message string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.store.SetProgress(ctx, previewID, current, total, message)
	})
	if err != nil {
		if failErr := r.store.Fail(context.WithoutCancel(ctx), previewID, database.PreviewStateDraft, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("preview_id", previewID).Msg("recording analysis failure")
		}
		return err
	}

	rows, err := encodeChanges(previewID, changes)
	if err == nil {
		err = r.store.ReplaceChanges(ctx, previewID, rows)
	}
	if err == nil {
		err = r.store.Transition(ctx, previewID, database.PreviewStateAnalyzing, database.PreviewStateReady)
	}
	if err != nil {
		if failErr := r.store.Fail(context.WithoutCancel(ctx), previewID, database.PreviewStateDraft, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("preview_id", previewID).Msg("recording analysis failure")
		}
		return err
	}

	metrics.RecordPreview()
	log.Info().
		Str("preview_id", previewID).
		Int("products", len(changes)).
		Msg("preview analysis complete")
	return nil
}

// encodeChanges converts in-memory classifications to storable rows.
func encodeChanges(previewID string, changes []*Change) ([]database.SyncChange, error) {
	rows := make([]database.SyncChange, 0, len(changes))
	for _, c := range changes {
		row := database.SyncChange{
			PreviewID:       previewID,
			ProductID:       c.ProductID,
			ProductName:     c.ProductName,
			ProductRef:      c.ProductRef,
			ChangeType:      c.ChangeType,
			RemoteProductID: c.RemoteProductID,
		}
		if len(c.FieldChanges) > 0 {
			raw, err := json.Marshal(c.FieldChanges)
			if err != nil {
				return nil, fmt.Errorf("encoding field changes for product %d: %w", c.ProductID, err)
			}
			row.FieldChanges = raw
		}
		if len(c.VariantChanges) > 0 {
			raw, err := json.Marshal(c.VariantChanges)
			if err != nil {
				return nil, fmt.Errorf("encoding variant changes for product %d: %w", c.ProductID, err)
			}
			row.VariantChanges = raw
		}
		if len(c.Warnings) > 0 {
			msg := c.WarningMessage()
			row.HasWarning = true
			row.WarningMessage = &msg
		}
		rows = append(rows, row)
	}
	return rows, nil
}
