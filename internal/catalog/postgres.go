package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store over the local Postgres catalog schema.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ErrNotFound is returned when a product or client does not exist.
var ErrNotFound = errors.New("catalog: not found")

func (s *PGStore) Product(ctx context.Context, id int64) (*Product, error) {
	products, err := s.Products(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return products[0], nil
}

func (s *PGStore) Products(ctx context.Context, ids []int64) ([]*Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.default_code, ''), COALESCE(p.barcode, ''),
		       p.list_price, p.standard_price, p.weight, p.volume,
		       COALESCE(p.description_sale, ''), COALESCE(p.description, ''),
		       COALESCE(p.description_purchase, ''),
		       COALESCE(p.category_id, 0), COALESCE(c.name, ''),
		       COALESCE(p.detailed_type, 'consu'), p.sale_ok, p.purchase_ok, p.is_published,
		       COALESCE(p.image_base64, '')
		FROM products p
		LEFT JOIN product_categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.DefaultCode, &p.Barcode,
			&p.ListPrice, &p.StandardPrice, &p.Weight, &p.Volume,
			&p.DescriptionSale, &p.Description, &p.DescriptionPurchase,
			&p.CategoryID, &p.CategoryName,
			&p.DetailedType, &p.SaleOK, &p.PurchaseOK, &p.IsPublished,
			&p.Image,
		); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadVariants(ctx, byID); err != nil {
		return nil, err
	}

	// Preserve the order of the requested batch
	out := make([]*Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *PGStore) loadVariants(ctx context.Context, products map[int64]*Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT v.id, v.product_id, COALESCE(v.default_code, ''), COALESCE(v.barcode, ''),
		       v.weight, v.volume, COALESCE(v.image_base64, '')
		FROM product_variants v
		WHERE v.product_id = ANY($1)
		ORDER BY v.id
	`, ids)
	if err != nil {
		return fmt.Errorf("querying variants: %w", err)
	}
	defer rows.Close()

	// track (product, slot) rather than pointers, appends may reallocate
	type slot struct {
		product *Product
		index   int
	}
	variantIndex := make(map[int64]slot)
	for rows.Next() {
		var v Variant
		var productID int64
		if err := rows.Scan(&v.ID, &productID, &v.DefaultCode, &v.Barcode, &v.Weight, &v.Volume, &v.Image); err != nil {
			return fmt.Errorf("scanning variant: %w", err)
		}
		if p, ok := products[productID]; ok {
			p.Variants = append(p.Variants, v)
			variantIndex[v.ID] = slot{product: p, index: len(p.Variants) - 1}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(variantIndex) == 0 {
		return nil
	}

	variantIDs := make([]int64, 0, len(variantIndex))
	for id := range variantIndex {
		variantIDs = append(variantIDs, id)
	}

	avRows, err := s.pool.Query(ctx, `
		SELECT vav.variant_id, a.id, a.name, av.id, av.name, COALESCE(vav.price_extra, 0)
		FROM variant_attribute_values vav
		JOIN attribute_values av ON av.id = vav.attribute_value_id
		JOIN attributes a ON a.id = av.attribute_id
		WHERE vav.variant_id = ANY($1)
		ORDER BY vav.variant_id, a.id
	`, variantIDs)
	if err != nil {
		return fmt.Errorf("querying variant attribute values: %w", err)
	}
	defer avRows.Close()

	for avRows.Next() {
		var variantID int64
		var av AttributeValue
		if err := avRows.Scan(&variantID, &av.AttributeID, &av.AttributeName, &av.ValueID, &av.ValueName, &av.PriceExtra); err != nil {
			return fmt.Errorf("scanning variant attribute value: %w", err)
		}
		if sl, ok := variantIndex[variantID]; ok {
			v := &sl.product.Variants[sl.index]
			v.AttributeValues = append(v.AttributeValues, av)
		}
	}
	return avRows.Err()
}

func (s *PGStore) Client(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_active, COALESCE(pricelist_id, 0)
		FROM catalog_clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.IsActive, &c.PricelistID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return &c, nil
}

func (s *PGStore) SelectedProductIDs(ctx context.Context, clientID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id
		FROM client_selected_products
		WHERE client_id = $1
		ORDER BY product_id
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying selected products: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) SelectedVariantIDs(ctx context.Context, clientID, productID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sv.variant_id
		FROM client_selected_variants sv
		JOIN product_variants v ON v.id = sv.variant_id
		WHERE sv.client_id = $1 AND v.product_id = $2
		ORDER BY sv.variant_id
	`, clientID, productID)
	if err != nil {
		return nil, fmt.Errorf("querying selected variants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PricelistPrice evaluates a pricelist rule for quantity 1. Product-specific
// rules win over global rules; a rule either fixes the price or applies a
// percentage discount to the list price.
func (s *PGStore) PricelistPrice(ctx context.Context, pricelistID, productID int64) (float64, error) {
	var computeMode string
	var fixedPrice, percentDiscount, listPrice float64
	err := s.pool.QueryRow(ctx, `
		SELECT i.compute_mode, COALESCE(i.fixed_price, 0), COALESCE(i.percent_discount, 0), p.list_price
		FROM pricelist_items i
		JOIN products p ON p.id = $2
		WHERE i.pricelist_id = $1
		  AND (i.product_id = $2 OR i.product_id IS NULL)
		  AND i.min_quantity <= 1
		ORDER BY i.product_id NULLS LAST, i.sequence
		LIMIT 1
	`, pricelistID, productID).Scan(&computeMode, &fixedPrice, &percentDiscount, &listPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No rule: fall back to the product's list price
			err = s.pool.QueryRow(ctx, `SELECT list_price FROM products WHERE id = $1`, productID).Scan(&listPrice)
			if err != nil {
				return 0, fmt.Errorf("querying list price: %w", err)
			}
			return listPrice, nil
		}
		return 0, fmt.Errorf("querying pricelist item: %w", err)
	}

	switch computeMode {
	case "fixed":
		return fixedPrice, nil
	case "percentage":
		return listPrice * (1 - percentDiscount/100), nil
	default:
		return listPrice, nil
	}
}
