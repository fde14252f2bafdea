package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

// MappingRepo persists field mappings and the taxonomy reconciliation tables
// for one service instance. It satisfies reconcile.Store.
type MappingRepo struct {
	pool *pgxpool.Pool
}

func NewMappingRepo(pool *pgxpool.Pool) *MappingRepo {
	return &MappingRepo{pool: pool}
}

const fieldMappingColumns = `
	id, connection_id, sequence,
	source_field, target_field, sync_mode,
	default_value, default_value_apply,
	apply_coefficient, coefficient, is_active`

func scanFieldMapping(row pgx.Row) (*FieldMapping, error) {
	var m FieldMapping
	err := row.Scan(
		&m.ID, &m.ConnectionID, &m.Sequence,
		&m.SourceField, &m.TargetField, &m.SyncMode,
		&m.DefaultValue, &m.DefaultValueApply,
		&m.ApplyCoefficient, &m.Coefficient, &m.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepo) FieldMappings(ctx context.Context, connectionID string) ([]FieldMapping, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fieldMappingColumns+`
		 FROM field_mappings
		 WHERE connection_id = $1
		 ORDER BY sequence, target_field`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := make([]FieldMapping, 0)
	for rows.Next() {
		m, err := scanFieldMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

func (r *MappingRepo) GetFieldMapping(ctx context.Context, id string) (*FieldMapping, error) {
	return scanFieldMapping(r.pool.QueryRow(ctx,
		`SELECT `+fieldMappingColumns+` FROM field_mappings WHERE id = $1`, id))
}

func (r *MappingRepo) CreateFieldMapping(ctx context.Context, m *FieldMapping) error {
	m.ID = ident.New()
	if m.SyncMode == "" {
		m.SyncMode = SyncModeAlways
	}
	if m.DefaultValueApply == "" {
		m.DefaultValueApply = DefaultApplyNever
	}
	if m.Coefficient == 0 {
		m.Coefficient = 1
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO field_mappings (
			id, connection_id, sequence,
			source_field, target_field, sync_mode,
			default_value, default_value_apply,
			apply_coefficient, coefficient, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		m.ID, m.ConnectionID, m.Sequence,
		m.SourceField, m.TargetField, m.SyncMode,
		m.DefaultValue, m.DefaultValueApply,
		m.ApplyCoefficient, m.Coefficient, m.IsActive,
	)
	return err
}

func (r *MappingRepo) UpdateFieldMapping(ctx context.Context, m *FieldMapping) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE field_mappings SET
			sequence = $2, source_field = $3, target_field = $4, sync_mode = $5,
			default_value = $6, default_value_apply = $7,
			apply_coefficient = $8, coefficient = $9, is_active = $10
		WHERE id = $1
	`,
		m.ID, m.Sequence, m.SourceField, m.TargetField, m.SyncMode,
		m.DefaultValue, m.DefaultValueApply,
		m.ApplyCoefficient, m.Coefficient, m.IsActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MappingRepo) DeleteFieldMapping(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM field_mappings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// defaultFieldMappings is the starter set installed on new connections.
var defaultFieldMappings = []FieldMapping{
	{Sequence: 10, SourceField: "name", TargetField: "name", SyncMode: SyncModeAlways},
	{Sequence: 20, SourceField: "default_code", TargetField: "default_code", SyncMode: SyncModeCreateOnly},
	{Sequence: 30, SourceField: "list_price", TargetField: "list_price", SyncMode: SyncModeAlways},
	{Sequence: 40, SourceField: "standard_price", TargetField: "standard_price", SyncMode: SyncModeAlways},
	{Sequence: 50, SourceField: "barcode", TargetField: "barcode", SyncMode: SyncModeIfEmpty},
	{Sequence: 60, SourceField: "weight", TargetField: "weight", SyncMode: SyncModeAlways},
	{Sequence: 70, SourceField: "volume", TargetField: "volume", SyncMode: SyncModeAlways},
	{Sequence: 80, SourceField: "description_sale", TargetField: "description_sale", SyncMode: SyncModeIfEmpty},
}

// InstallDefaults creates the starter mappings for a connection, skipping
// target fields that already have a mapping. Returns how many were added.
func (r *MappingRepo) InstallDefaults(ctx context.Context, connectionID string) (int, error) {
	existing, err := r.FieldMappings(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]bool, len(existing))
	for _, m := range existing {
		taken[m.TargetField] = true
	}

	added := 0
	for _, def := range defaultFieldMappings {
		if taken[def.TargetField] {
			continue
		}
		m := def
		m.ConnectionID = connectionID
		m.IsActive = true
		if err := r.CreateFieldMapping(ctx, &m); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// CategoryMapping loads one memoized category resolution, nil when absent.
func (r *MappingRepo) CategoryMapping(ctx context.Context, connectionID string, localCategoryID int64) (*CategoryMapping, error) {
	var m CategoryMapping
	err := r.pool.QueryRow(ctx, `
		SELECT id, connection_id, local_category_id, local_category_name,
		       remote_category_id, remote_category_name, auto_create, created_at
		FROM category_mappings
		WHERE connection_id = $1 AND local_category_id = $2
	`, connectionID, localCategoryID).Scan(
		&m.ID, &m.ConnectionID, &m.LocalCategoryID, &m.LocalCategoryName,
		&m.RemoteCategoryID, &m.RemoteCategoryName, &m.AutoCreate, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepo) SaveCategoryMapping(ctx context.Context, m *CategoryMapping) error {
	if m.ID == "" {
		m.ID = ident.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO category_mappings (
			id, connection_id, local_category_id, local_category_name,
			remote_category_id, remote_category_name, auto_create
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (connection_id, local_category_id) DO UPDATE SET
			local_category_name = EXCLUDED.local_category_name,
			remote_category_id = EXCLUDED.remote_category_id,
			remote_category_name = EXCLUDED.remote_category_name
	`,
		m.ID, m.ConnectionID, m.LocalCategoryID, m.LocalCategoryName,
		m.RemoteCategoryID, m.RemoteCategoryName, m.AutoCreate,
	)
	return err
}

func (r *MappingRepo) CategoryMappings(ctx context.Context, connectionID string) ([]CategoryMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, connection_id, local_category_id, local_category_name,
		       remote_category_id, remote_category_name, auto_create, created_at
		FROM category_mappings
		WHERE connection_id = $1
		ORDER BY local_category_name
	`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := make([]CategoryMapping, 0)
	for rows.Next() {
		var m CategoryMapping
		if err := rows.Scan(
			&m.ID, &m.ConnectionID, &m.LocalCategoryID, &m.LocalCategoryName,
			&m.RemoteCategoryID, &m.RemoteCategoryName, &m.AutoCreate, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *MappingRepo) AttributeMapping(ctx context.Context, connectionID string, localAttributeID int64) (*AttributeMapping, error) {
	var m AttributeMapping
	err := r.pool.QueryRow(ctx, `
		SELECT id, connection_id, local_attribute_id, local_attribute_name,
		       remote_attribute_id, remote_attribute_name, created_at
		FROM attribute_mappings
		WHERE connection_id = $1 AND local_attribute_id = $2
	`, connectionID, localAttributeID).Scan(
		&m.ID, &m.ConnectionID, &m.LocalAttributeID, &m.LocalAttributeName,
		&m.RemoteAttributeID, &m.RemoteAttributeName, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepo) SaveAttributeMapping(ctx context.Context, m *AttributeMapping) error {
	if m.ID == "" {
		m.ID = ident.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attribute_mappings (
			id, connection_id, local_attribute_id, local_attribute_name,
			remote_attribute_id, remote_attribute_name
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id, local_attribute_id) DO UPDATE SET
			local_attribute_name = EXCLUDED.local_attribute_name,
			remote_attribute_id = EXCLUDED.remote_attribute_id,
			remote_attribute_name = EXCLUDED.remote_attribute_name
	`,
		m.ID, m.ConnectionID, m.LocalAttributeID, m.LocalAttributeName,
		m.RemoteAttributeID, m.RemoteAttributeName,
	)
	return err
}

func (r *MappingRepo) AttributeValueMapping(ctx context.Context, connectionID string, localValueID, remoteAttributeID int64) (*AttributeValueMapping, error) {
	var m AttributeValueMapping
	err := r.pool.QueryRow(ctx, `
		SELECT id, connection_id, local_value_id, local_value_name,
		       remote_attribute_id, remote_value_id, remote_value_name, created_at
		FROM attribute_value_mappings
		WHERE connection_id = $1 AND local_value_id = $2 AND remote_attribute_id = $3
	`, connectionID, localValueID, remoteAttributeID).Scan(
		&m.ID, &m.ConnectionID, &m.LocalValueID, &m.LocalValueName,
		&m.RemoteAttributeID, &m.RemoteValueID, &m.RemoteValueName, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepo) SaveAttributeValueMapping(ctx context.Context, m *AttributeValueMapping) error {
	if m.ID == "" {
		m.ID = ident.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attribute_value_mappings (
			id, connection_id, local_value_id, local_value_name,
			remote_attribute_id, remote_value_id, remote_value_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (connection_id, local_value_id, remote_attribute_id) DO UPDATE SET
			local_value_name = EXCLUDED.local_value_name,
			remote_value_id = EXCLUDED.remote_value_id,
			remote_value_name = EXCLUDED.remote_value_name
	`,
		m.ID, m.ConnectionID, m.LocalValueID, m.LocalValueName,
		m.RemoteAttributeID, m.RemoteValueID, m.RemoteValueName,
	)
	return err
}
