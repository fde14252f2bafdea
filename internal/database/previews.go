package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

// PreviewRepo owns the sync_previews and sync_changes tables. State changes
// go through conditional updates so two workers can never drive the same
// preview at once.
type PreviewRepo struct {
	pool *pgxpool.Pool
}

func NewPreviewRepo(pool *pgxpool.Pool) *PreviewRepo {
	return &PreviewRepo{pool: pool}
}

const previewColumns = `
	id, connection_id, product_ids, state,
	sync_current, sync_total, sync_progress, sync_message, error_message, history_id,
	triggered_by, created_at, updated_at`

func scanPreview(row pgx.Row) (*SyncPreview, error) {
	var p SyncPreview
	err := row.Scan(
		&p.ID, &p.ConnectionID, &p.ProductIDs, &p.State,
		&p.SyncCurrent, &p.SyncTotal, &p.SyncProgress, &p.SyncMessage, &p.ErrorMessage, &p.HistoryID,
		&p.TriggeredBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a draft preview. The partial unique index on non-terminal
// previews guarantees at most one in flight per connection; a collision
// surfaces as ErrActivePreview.
func (r *PreviewRepo) Create(ctx context.Context, p *SyncPreview) error {
	p.ID = ident.New()
	p.State = PreviewStateDraft
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sync_previews (id, connection_id, product_ids, state, triggered_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.ConnectionID, p.ProductIDs, p.State, p.TriggeredBy).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrActivePreview
	}
	return err
}

func (r *PreviewRepo) Get(ctx context.Context, id string) (*SyncPreview, error) {
	return scanPreview(r.pool.QueryRow(ctx,
		`SELECT `+previewColumns+` FROM sync_previews WHERE id = $1`, id))
}

func (r *PreviewRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]SyncPreview, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+previewColumns+`
		FROM sync_previews
		WHERE connection_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	previews := make([]SyncPreview, 0)
	for rows.Next() {
		p, err := scanPreview(rows)
		if err != nil {
			return nil, err
		}
		previews = append(previews, *p)
	}
	return previews, rows.Err()
}

// Transition moves a preview from one state to another. ErrStateConflict
// when the preview is not currently in the from state.
func (r *PreviewRepo) Transition(ctx context.Context, id, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_previews
		SET state = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStateConflict
	}
	return nil
}

// SetProgress commits per-product progress so polling clients and crash
// recovery see how far a run got.
func (r *PreviewRepo) SetProgress(ctx context.Context, id string, current, total int, message string) error {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_previews
		SET sync_current = $2, sync_total = $3, sync_progress = $4, sync_message = $5, updated_at = NOW()
		WHERE id = $1
	`, id, current, total, percent, message)
	return err
}

// Fail parks the preview in a retryable state with the failure recorded.
func (r *PreviewRepo) Fail(ctx context.Context, id, state, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_previews
		SET state = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`, id, state, message)
	return err
}

// Cancel requests cancellation of an executing run. The runner observes the
// state between products and stops.
func (r *PreviewRepo) Cancel(ctx context.Context, id string) error {
	return r.Transition(ctx, id, PreviewStateExecuting, PreviewStateCancelled)
}

// Complete finishes a run, linking its history entry. Both executing and
// cancelled runs land in done.
func (r *PreviewRepo) Complete(ctx context.Context, id string, historyID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_previews
		SET state = $3, history_id = $2,
		    sync_message = CASE WHEN state = $5 THEN 'cancelled' ELSE 'finished' END,
		    updated_at = NOW()
		WHERE id = $1 AND state IN ($4, $5)
	`, id, historyID, PreviewStateDone, PreviewStateExecuting, PreviewStateCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

const changeColumns = `
	id, preview_id, sequence, product_id, product_name, product_ref,
	change_type, remote_product_id, field_changes, variant_changes,
	has_warning, warning_message, is_excluded`

func scanChange(row pgx.Row) (*SyncChange, error) {
	var c SyncChange
	err := row.Scan(
		&c.ID, &c.PreviewID, &c.Sequence, &c.ProductID, &c.ProductName, &c.ProductRef,
		&c.ChangeType, &c.RemoteProductID, &c.FieldChanges, &c.VariantChanges,
		&c.HasWarning, &c.WarningMessage, &c.IsExcluded,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PreviewRepo) Changes(ctx context.Context, previewID string) ([]SyncChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+changeColumns+`
		FROM sync_changes
		WHERE preview_id = $1
		ORDER BY sequence
	`, previewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]SyncChange, 0)
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *c)
	}
	return changes, rows.Err()
}

// ReplaceChanges swaps in a fresh analysis result atomically.
func (r *PreviewRepo) ReplaceChanges(ctx context.Context, previewID string, changes []SyncChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sync_changes WHERE preview_id = $1`, previewID); err != nil {
		return err
	}
	for i := range changes {
		c := &changes[i]
		c.ID = ident.New()
		c.PreviewID = previewID
		c.Sequence = i
		if _, err := tx.Exec(ctx, `
			INSERT INTO sync_changes (
				id, preview_id, sequence, product_id, product_name, product_ref,
				change_type, remote_product_id, field_changes, variant_changes,
				has_warning, warning_message, is_excluded
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			c.ID, c.PreviewID, c.Sequence, c.ProductID, c.ProductName, c.ProductRef,
			c.ChangeType, c.RemoteProductID, c.FieldChanges, c.VariantChanges,
			c.HasWarning, c.WarningMessage, c.IsExcluded,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SetExcluded toggles one change in or out of the upcoming execution. Only
// allowed while the preview sits in ready.
func (r *PreviewRepo) SetExcluded(ctx context.Context, changeID string, excluded bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_changes c
		SET is_excluded = $2
		FROM sync_previews p
		WHERE c.id = $1 AND p.id = c.preview_id AND p.state = $3
	`, changeID, excluded, PreviewStateReady)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// DeleteOlderThan clears finished previews past the retention window.
// Changes go with them via the FK cascade.
func (r *PreviewRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sync_previews
		WHERE created_at < $1 AND state IN ($2, $3)
	`, cutoff, PreviewStateDone, PreviewStateDraft)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReclaimStale returns previews stuck in a transient state to a retryable
// one. Covers workers that died mid-run.
func (r *PreviewRepo) ReclaimStale(ctx context.Context, deadline time.Duration) (int64, error) {
	cutoff := time.Now().Add(-deadline)
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_previews
		SET state = CASE state WHEN $2 THEN $3 ELSE $4 END,
		    error_message = 'reclaimed: worker stopped responding',
		    updated_at = NOW()
		WHERE state IN ($2, $5) AND updated_at < $1
	`, cutoff, PreviewStateAnalyzing, PreviewStateDraft, PreviewStateReady, PreviewStateExecuting)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
