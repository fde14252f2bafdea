package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

type ExportFieldRepo struct {
	pool *pgxpool.Pool
}

func NewExportFieldRepo(pool *pgxpool.Pool) *ExportFieldRepo {
	return &ExportFieldRepo{pool: pool}
}

const exportFieldColumns = `id, name, technical_name, header, sequence, enabled`

func scanExportField(row pgx.Row) (*ExportField, error) {
	var f ExportField
	err := row.Scan(&f.ID, &f.Name, &f.TechnicalName, &f.Header, &f.Sequence, &f.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *ExportFieldRepo) List(ctx context.Context) ([]ExportField, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+exportFieldColumns+` FROM export_fields ORDER BY sequence, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make([]ExportField, 0)
	for rows.Next() {
		f, err := scanExportField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

// Enabled returns the active columns in export order.
func (r *ExportFieldRepo) Enabled(ctx context.Context) ([]ExportField, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+exportFieldColumns+` FROM export_fields WHERE enabled ORDER BY sequence, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make([]ExportField, 0)
	for rows.Next() {
		f, err := scanExportField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

func (r *ExportFieldRepo) Upsert(ctx context.Context, f *ExportField) error {
	if f.ID == "" {
		f.ID = ident.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO export_fields (id, name, technical_name, header, sequence, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (technical_name) DO UPDATE SET
			name = EXCLUDED.name,
			header = EXCLUDED.header,
			sequence = EXCLUDED.sequence,
			enabled = EXCLUDED.enabled
	`, f.ID, f.Name, f.TechnicalName, f.Header, f.Sequence, f.Enabled)
	return err
}

// defaultExportFields is the starter column set.
var defaultExportFields = []ExportField{
	{Name: "Reference", TechnicalName: "default_code", Sequence: 10, Enabled: true},
	{Name: "Name", TechnicalName: "name", Sequence: 20, Enabled: true},
	{Name: "Barcode", TechnicalName: "barcode", Sequence: 30, Enabled: true},
	{Name: "Category", TechnicalName: "categ_id", Sequence: 40, Enabled: true},
	{Name: "Sales Price", TechnicalName: "list_price", Sequence: 50, Enabled: true},
	{Name: "Cost", TechnicalName: "standard_price", Sequence: 60, Enabled: false},
	{Name: "Weight", TechnicalName: "weight", Sequence: 70, Enabled: false},
	{Name: "Volume", TechnicalName: "volume", Sequence: 80, Enabled: false},
	{Name: "Sales Description", TechnicalName: "description_sale", Sequence: 90, Enabled: false},
}

// InstallDefaults seeds the export column set when the table is empty.
// Returns the number of columns added.
func (r *ExportFieldRepo) InstallDefaults(ctx context.Context) (int, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i := range defaultExportFields {
		f := defaultExportFields[i]
		if err := r.Upsert(ctx, &f); err != nil {
			return i, err
		}
	}
	return len(defaultExportFields), nil
}
