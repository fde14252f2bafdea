package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/metrics"
	"github.com/supplyline/catalog-service/internal/remote"
)

// PreviewStore is the persistence surface the run needs for the preview
// being executed.
type PreviewStore interface {
	Get(ctx context.Context, id string) (*database.SyncPreview, error)
	Changes(ctx context.Context, previewID string) ([]database.SyncChange, error)
	Transition(ctx context.Context, id, from, to string) error
	SetProgress(ctx context.Context, id string, current, total int, message string) error
	Fail(ctx context.Context, id, state, message string) error
	Complete(ctx context.Context, id string, historyID string) error
}

// HistoryStore records the immutable outcome of a run.
type HistoryStore interface {
	Insert(ctx context.Context, h *database.SyncHistory) error
}

// ConnectionStore lets the run note the connection's last successful sync.
type ConnectionStore interface {
	TouchLastSync(ctx context.Context, id string) error
}

// productDetail is one line of the history's per-product record.
type productDetail struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Action      string `json:"action"`
	Error       string `json:"error,omitempty"`
}

// Runner executes one ready preview. Progress is committed after every
// product so a crash loses at most the product in flight, and the persisted
// state is polled between products so a cancellation request takes effect
// without killing the worker.
type Runner struct {
	previews    PreviewStore
	history     HistoryStore
	connections ConnectionStore
	executor    *Executor
	conn        *database.Connection
	triggeredBy string
}

func NewRunner(previews PreviewStore, history HistoryStore, connections ConnectionStore, exec *Executor, conn *database.Connection, triggeredBy string) *Runner {
	return &Runner{
		previews:    previews,
		history:     history,
		connections: connections,
		executor:    exec,
		conn:        conn,
		triggeredBy: triggeredBy,
	}
}

// Run executes the preview and returns the recorded history entry.
func (r *Runner) Run(ctx context.Context, previewID string) (*database.SyncHistory, error) {
	if err := r.previews.Transition(ctx, previewID, database.PreviewStateReady, database.PreviewStateExecuting); err != nil {
		return nil, err
	}

	changes, err := r.previews.Changes(ctx, previewID)
	if err != nil {
		r.fail(ctx, previewID, err)
		return nil, err
	}

	started := time.Now()
	h := &database.SyncHistory{
		ConnectionID: r.conn.ID,
		TriggeredBy:  r.triggeredBy,
	}
	details := make([]productDetail, 0, len(changes))
	var errLines []string
	cancelled := false

	total := len(changes)
	for i := range changes {
		change := &changes[i]

		state, err := r.previews.Get(ctx, previewID)
		if err != nil {
			r.fail(ctx, previewID, err)
			return nil, err
		}
		if state.State == database.PreviewStateCancelled {
			cancelled = true
			log.Info().
				Str("preview_id", previewID).
				Int("done", i).
				Int("total", total).
				Msg("cancellation honored")
			break
		}

		if err := r.previews.SetProgress(ctx, previewID, i, total, change.ProductName); err != nil {
			r.fail(ctx, previewID, err)
			return nil, err
		}

		result, execErr := r.executor.Execute(ctx, change)
		detail := productDetail{ProductID: change.ProductID, ProductName: change.ProductName}
		switch {
		case execErr != nil:
			h.ProductsErrored++
			detail.Action = "error"
			detail.Error = execErr.Error()
			errLines = append(errLines, fmt.Sprintf("%s: %s", change.ProductName, execErr.Error()))
			var safety *remote.SafetyError
			if errors.As(execErr, &safety) {
				log.Warn().Err(execErr).Int64("product_id", change.ProductID).Msg("update target rejected")
			} else {
				log.Error().Err(execErr).Int64("product_id", change.ProductID).Msg("product sync failed")
			}
		case result.Action == database.ChangeCreate:
			h.ProductsCreated++
			detail.Action = database.ChangeCreate
		case result.Action == database.ChangeUpdate:
			h.ProductsUpdated++
			detail.Action = database.ChangeUpdate
		default:
			h.ProductsSkipped++
			detail.Action = database.ChangeSkip
		}
		details = append(details, detail)
	}

	h.DurationMS = time.Since(started).Milliseconds()
	h.Status = aggregateStatus(h, cancelled)
	if cancelled {
		errLines = append(errLines, fmt.Sprintf("cancelled after %d of %d products", len(details), total))
	}
	if len(errLines) > 0 {
		joined := strings.Join(errLines, "\n")
		h.ErrorLog = &joined
	}
	if raw, err := json.Marshal(details); err == nil {
		h.Details = raw
	}

	finishCtx := context.WithoutCancel(ctx)
	if err := r.history.Insert(finishCtx, h); err != nil {
		r.fail(finishCtx, previewID, err)
		return nil, err
	}
	if err := r.previews.Complete(finishCtx, previewID, h.ID); err != nil {
		return nil, err
	}
	if h.ProductsCreated+h.ProductsUpdated > 0 {
		if err := r.connections.TouchLastSync(finishCtx, r.conn.ID); err != nil {
			log.Warn().Err(err).Str("connection_id", r.conn.ID).Msg("recording last sync time")
		}
	}

	metrics.RecordRun(h.Status, time.Duration(h.DurationMS)*time.Millisecond,
		h.ProductsCreated, h.ProductsUpdated, h.ProductsSkipped, h.ProductsErrored)

	log.Info().
		Str("preview_id", previewID).
		Str("history_id", h.ID).
		Str("status", h.Status).
		Int("created", h.ProductsCreated).
		Int("updated", h.ProductsUpdated).
		Int("skipped", h.ProductsSkipped).
		Int("errored", h.ProductsErrored).
		Msg("sync run finished")
	return h, nil
}

// fail returns the preview to ready so the run can be retried.
func (r *Runner) fail(ctx context.Context, previewID string, cause error) {
	if err := r.previews.Fail(context.WithoutCancel(ctx), previewID, database.PreviewStateReady, cause.Error()); err != nil {
		log.Error().Err(err).Str("preview_id", previewID).Msg("recording execution failure")
	}
}

// aggregateStatus folds per-product outcomes into one run status. A run is
// partial only when something actually landed; a cancelled or failed run
// with no creates and no updates is an error.
func aggregateStatus(h *database.SyncHistory, cancelled bool) string {
	switch {
	case !cancelled && h.ProductsErrored == 0:
		return database.HistoryStatusSuccess
	case h.ProductsCreated+h.ProductsUpdated > 0:
		return database.HistoryStatusPartial
	default:
		return database.HistoryStatusError
	}
}
