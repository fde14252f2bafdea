package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

const connectionColumns = `
	id, supplier_client_id, name,
	remote_url, database, api_key, username, verify_ssl, timeout_seconds,
	is_active, connection_status, connection_error, last_test_at, last_sync_at,
	sync_variants, auto_create_categories, include_images, preserve_remote_images,
	reference_mode, reference_prefix, reference_suffix, reference_separator, reference_custom_format,
	create_supplier_info, supplier_partner_id, supplier_partner_name,
	supplier_info_price_field, supplier_info_price_coeff,
	created_at, updated_at`

type ConnectionRepo struct {
	pool *pgxpool.Pool
}

func NewConnectionRepo(pool *pgxpool.Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(
		&c.ID, &c.SupplierClientID, &c.Name,
		&c.RemoteURL, &c.Database, &c.APIKey, &c.Username, &c.VerifySSL, &c.TimeoutSeconds,
		&c.IsActive, &c.ConnectionStatus, &c.ConnectionError, &c.LastTestAt, &c.LastSyncAt,
		&c.SyncVariants, &c.AutoCreateCategories, &c.IncludeImages, &c.PreserveRemoteImages,
		&c.ReferenceMode, &c.ReferencePrefix, &c.ReferenceSuffix, &c.ReferenceSeparator, &c.ReferenceCustomFormat,
		&c.CreateSupplierInfo, &c.SupplierPartnerID, &c.SupplierPartnerName,
		&c.SupplierInfoPriceField, &c.SupplierInfoPriceCoeff,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepo) Create(ctx context.Context, c *Connection) error {
	c.ID = ident.New()
	if c.ConnectionStatus == "" {
		c.ConnectionStatus = ConnStatusNotTested
	}
	if c.ReferenceMode == "" {
		c.ReferenceMode = RefModeKeepOriginal
	}
	if c.SupplierInfoPriceField == "" {
		c.SupplierInfoPriceField = PriceSourceListPrice
	}
	if c.SupplierInfoPriceCoeff == 0 {
		c.SupplierInfoPriceCoeff = 1
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO connections (
			id, supplier_client_id, name,
			remote_url, database, api_key, username, verify_ssl, timeout_seconds,
			is_active, connection_status,
			sync_variants, auto_create_categories, include_images, preserve_remote_images,
			reference_mode, reference_prefix, reference_suffix, reference_separator, reference_custom_format,
			create_supplier_info, supplier_partner_id,
			supplier_info_price_field, supplier_info_price_coeff
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING created_at, updated_at
	`,
		c.ID, c.SupplierClientID, c.Name,
		c.RemoteURL, c.Database, c.APIKey, c.Username, c.VerifySSL, c.TimeoutSeconds,
		c.IsActive, c.ConnectionStatus,
		c.SyncVariants, c.AutoCreateCategories, c.IncludeImages, c.PreserveRemoteImages,
		c.ReferenceMode, c.ReferencePrefix, c.ReferenceSuffix, c.ReferenceSeparator, c.ReferenceCustomFormat,
		c.CreateSupplierInfo, c.SupplierPartnerID,
		c.SupplierInfoPriceField, c.SupplierInfoPriceCoeff,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ConnectionRepo) Get(ctx context.Context, id string) (*Connection, error) {
	return scanConnection(r.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id))
}

func (r *ConnectionRepo) List(ctx context.Context) ([]Connection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := make([]Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

// Update rewrites the mutable settings. The API key is only replaced when a
// new one is supplied so reads never have to round-trip the secret.
func (r *ConnectionRepo) Update(ctx context.Context, c *Connection) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE connections SET
			name = $2, remote_url = $3, database = $4,
			api_key = CASE WHEN $5 = '' THEN api_key ELSE $5 END,
			username = $6, verify_ssl = $7, timeout_seconds = $8, is_active = $9,
			sync_variants = $10, auto_create_categories = $11,
			include_images = $12, preserve_remote_images = $13,
			reference_mode = $14, reference_prefix = $15, reference_suffix = $16,
			reference_separator = $17, reference_custom_format = $18,
			create_supplier_info = $19, supplier_partner_id = $20,
			supplier_info_price_field = $21, supplier_info_price_coeff = $22,
			updated_at = NOW()
		WHERE id = $1
	`,
		c.ID, c.Name, c.RemoteURL, c.Database, c.APIKey,
		c.Username, c.VerifySSL, c.TimeoutSeconds, c.IsActive,
		c.SyncVariants, c.AutoCreateCategories,
		c.IncludeImages, c.PreserveRemoteImages,
		c.ReferenceMode, c.ReferencePrefix, c.ReferenceSuffix,
		c.ReferenceSeparator, c.ReferenceCustomFormat,
		c.CreateSupplierInfo, c.SupplierPartnerID,
		c.SupplierInfoPriceField, c.SupplierInfoPriceCoeff,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConnectionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTestResult records the outcome of a connection test.
func (r *ConnectionRepo) SetTestResult(ctx context.Context, id, status string, testErr *string, testedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE connections
		SET connection_status = $2, connection_error = $3, last_test_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, testErr, testedAt)
	return err
}

// SetPartnerName caches the supplier partner's display name fetched from the
// remote.
func (r *ConnectionRepo) SetPartnerName(ctx context.Context, id string, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE connections
		SET supplier_partner_name = $2, updated_at = NOW()
		WHERE id = $1
	`, id, name)
	return err
}

func (r *ConnectionRepo) TouchLastSync(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE connections SET last_sync_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id)
	return err
}
