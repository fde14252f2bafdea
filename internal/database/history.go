package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

const historyColumns = `
	id, connection_id,
	products_created, products_updated, products_skipped, products_errored,
	status, error_log, details, duration_ms, triggered_by, created_at`

func scanHistory(row pgx.Row) (*SyncHistory, error) {
	var h SyncHistory
	err := row.Scan(
		&h.ID, &h.ConnectionID,
		&h.ProductsCreated, &h.ProductsUpdated, &h.ProductsSkipped, &h.ProductsErrored,
		&h.Status, &h.ErrorLog, &h.Details, &h.DurationMS, &h.TriggeredBy, &h.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HistoryRepo) Insert(ctx context.Context, h *SyncHistory) error {
	h.ID = ident.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO sync_history (
			id, connection_id,
			products_created, products_updated, products_skipped, products_errored,
			status, error_log, details, duration_ms, triggered_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`,
		h.ID, h.ConnectionID,
		h.ProductsCreated, h.ProductsUpdated, h.ProductsSkipped, h.ProductsErrored,
		h.Status, h.ErrorLog, h.Details, h.DurationMS, h.TriggeredBy,
	).Scan(&h.CreatedAt)
}

func (r *HistoryRepo) Get(ctx context.Context, id string) (*SyncHistory, error) {
	return scanHistory(r.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM sync_history WHERE id = $1`, id))
}

func (r *HistoryRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]SyncHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM sync_history
		WHERE connection_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]SyncHistory, 0)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *h)
	}
	return entries, rows.Err()
}

func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sync_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
