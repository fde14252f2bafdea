// Package catalog provides read-only access to the supplier's local product
// data: templates, variants, attribute-value compositions, categories and
// pricelists. The sync engine never mutates local product data.
package catalog

import (
	"context"
)

// Product is a local product template, the source of truth for sync.
type Product struct {
	ID            int64
	Name          string
	DefaultCode   string
	Barcode       string
	ListPrice     float64
	StandardPrice float64
	Weight        float64
	Volume        float64

	DescriptionSale     string
	Description         string
	DescriptionPurchase string

	CategoryID   int64 // 0 when uncategorized
	CategoryName string

	DetailedType string
	SaleOK       bool
	PurchaseOK   bool
	IsPublished  bool

	Image string // base64, empty when none

	Variants []Variant
}

// Variant is one sellable combination of a product's attribute values.
type Variant struct {
	ID          int64
	DefaultCode string
	Barcode     string
	Weight      float64
	Volume      float64
	Image       string // variant-specific image, empty when inherited

	AttributeValues []AttributeValue
}

// AttributeValue is one (attribute, value) pair on a variant, with the
// price bump the value carries.
type AttributeValue struct {
	AttributeID   int64
	AttributeName string
	ValueID       int64
	ValueName     string
	PriceExtra    float64
}

// HasAttributeValues reports whether the variant carries a real combination.
func (v *Variant) HasAttributeValues() bool {
	return len(v.AttributeValues) > 0
}

// Client is a supplier client with catalog access and a selection cart.
type Client struct {
	ID          int64
	Name        string
	IsActive    bool
	PricelistID int64 // 0 when the client has no dedicated pricelist
}

// Store is the read-only local data surface consumed by the sync engine and
// the export writers.
type Store interface {
	// Product loads one template with variants and attribute values.
	Product(ctx context.Context, id int64) (*Product, error)

	// Products loads a batch, preserving the order of ids.
	Products(ctx context.Context, ids []int64) ([]*Product, error)

	// Client loads a supplier client.
	Client(ctx context.Context, id int64) (*Client, error)

	// SelectedProductIDs returns the client's selection cart.
	SelectedProductIDs(ctx context.Context, clientID int64) ([]int64, error)

	// SelectedVariantIDs returns the client's explicit variant selection for
	// one template. Empty means all variants are synced.
	SelectedVariantIDs(ctx context.Context, clientID, productID int64) ([]int64, error)

	// PricelistPrice evaluates a pricelist for one product at quantity 1.
	PricelistPrice(ctx context.Context, pricelistID, productID int64) (float64, error)
}
