// Package executor applies a ready preview to the remote instance: creating
// and updating product templates, reconciling taxonomy, maintaining supplier
// pricing, and syncing variants.
package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/preview"
	"github.com/supplyline/catalog-service/internal/reconcile"
	"github.com/supplyline/catalog-service/internal/reference"
	"github.com/supplyline/catalog-service/internal/remote"
)

// Executor pushes one connection's planned changes to the remote. Build one
// per run; it shares the run's session and reconciler.
type Executor struct {
	store      catalog.Store
	session    remote.Session
	conn       *database.Connection
	reconciler *reconcile.Reconciler
}

func New(store catalog.Store, session remote.Session, conn *database.Connection, reconciler *reconcile.Reconciler) *Executor {
	return &Executor{store: store, session: session, conn: conn, reconciler: reconciler}
}

// Result is the outcome of executing one planned change.
type Result struct {
	Action          string // create | update | skip
	RemoteProductID int64
	VariantsCreated int
	VariantsUpdated int
}

// Execute applies one planned change. Skip-classified and excluded changes
// are counted without touching the remote.
func (e *Executor) Execute(ctx context.Context, change *database.SyncChange) (*Result, error) {
	if change.IsExcluded || change.ChangeType == database.ChangeSkip {
		return &Result{Action: database.ChangeSkip}, nil
	}

	product, err := e.store.Product(ctx, change.ProductID)
	if err != nil {
		return nil, fmt.Errorf("loading product %d: %w", change.ProductID, err)
	}

	fields, variants, err := decodePlan(change)
	if err != nil {
		return nil, err
	}

	switch change.ChangeType {
	case database.ChangeCreate:
		return e.create(ctx, product, fields, variants)
	case database.ChangeUpdate:
		return e.update(ctx, product, change.RemoteProductID, fields, variants)
	default:
		return nil, fmt.Errorf("unknown change type %q", change.ChangeType)
	}
}

func decodePlan(change *database.SyncChange) (map[string]preview.FieldDiff, []preview.VariantDiff, error) {
	var fields map[string]preview.FieldDiff
	if len(change.FieldChanges) > 0 {
		if err := json.Unmarshal(change.FieldChanges, &fields); err != nil {
			return nil, nil, fmt.Errorf("decoding field changes: %w", err)
		}
	}
	var variants []preview.VariantDiff
	if len(change.VariantChanges) > 0 {
		if err := json.Unmarshal(change.VariantChanges, &variants); err != nil {
			return nil, nil, fmt.Errorf("decoding variant changes: %w", err)
		}
	}
	return fields, variants, nil
}

// create builds a new remote template from the planned values, filling in
// the reference, type defaults, category, and image.
func (e *Executor) create(ctx context.Context, product *catalog.Product, fields map[string]preview.FieldDiff, _ []preview.VariantDiff) (*Result, error) {
	vals := make(map[string]interface{}, len(fields)+6)
	for field, diff := range fields {
		vals[field] = diff.New
	}

	if ref, _ := vals["default_code"].(string); ref == "" {
		if human := reference.Generate(e.conn, product); human != "" {
			vals["default_code"] = human
		} else {
			vals["default_code"] = reference.ExternalID(e.conn.SupplierClientID, product.ID)
		}
	}
	if _, ok := vals["name"]; !ok {
		vals["name"] = product.Name
	}
	if _, ok := vals["detailed_type"]; !ok {
		vals["detailed_type"] = "product"
	}
	if _, ok := vals["sale_ok"]; !ok {
		vals["sale_ok"] = true
	}
	if _, ok := vals["purchase_ok"]; !ok {
		vals["purchase_ok"] = true
	}

	categID, err := e.reconciler.Category(ctx, product.CategoryID, product.CategoryName)
	if err != nil {
		return nil, fmt.Errorf("resolving category: %w", err)
	}
	if categID != 0 {
		vals["categ_id"] = categID
	}

	if e.conn.IncludeImages && product.Image != "" {
		vals["image_1920"] = product.Image
	}

	remoteID, err := remote.Create(ctx, e.session, "product.template", vals)
	if err != nil {
		return nil, fmt.Errorf("creating remote product: %w", err)
	}

	log.Info().
		Str("connection_id", e.conn.ID).
		Int64("product_id", product.ID).
		Int64("remote_id", remoteID).
		Msg("created remote product")

	e.maintainSupplierInfo(ctx, product, remoteID)

	result := &Result{Action: database.ChangeCreate, RemoteProductID: remoteID}
	if e.conn.SyncVariants {
		created, updated, err := e.syncVariants(ctx, product, remoteID)
		if err != nil {
			return nil, err
		}
		result.VariantsCreated, result.VariantsUpdated = created, updated
	}
	return result, nil
}

// update writes the planned diff to an existing remote template after
// verifying the target still carries an expected reference.
func (e *Executor) update(ctx context.Context, product *catalog.Product, remoteID int64, fields map[string]preview.FieldDiff, _ []preview.VariantDiff) (*Result, error) {
	if err := e.verifyTarget(ctx, product, remoteID); err != nil {
		return nil, err
	}

	vals := make(map[string]interface{}, len(fields)+1)
	for field, diff := range fields {
		vals[field] = diff.New
	}
	if e.conn.IncludeImages && product.Image != "" {
		if e.conn.PreserveRemoteImages {
			// only fill in the image when the remote has none
			records, err := remote.Read(ctx, e.session, "product.template",
				[]int64{remoteID}, []string{"image_1920"})
			if err != nil {
				return nil, fmt.Errorf("re-reading remote image: %w", err)
			}
			if len(records) > 0 {
				if img, ok := records[0]["image_1920"].(string); !ok || img == "" {
					vals["image_1920"] = product.Image
				}
			}
		} else {
			vals["image_1920"] = product.Image
		}
	}

	if len(vals) > 0 {
		if err := remote.Write(ctx, e.session, "product.template", []int64{remoteID}, vals); err != nil {
			return nil, fmt.Errorf("updating remote product: %w", err)
		}
	}

	e.maintainSupplierInfo(ctx, product, remoteID)

	result := &Result{Action: database.ChangeUpdate, RemoteProductID: remoteID}
	if e.conn.SyncVariants {
		created, updated, err := e.syncVariants(ctx, product, remoteID)
		if err != nil {
			return nil, err
		}
		result.VariantsCreated, result.VariantsUpdated = created, updated
	}
	return result, nil
}

// verifyTarget re-reads the remote reference right before writing. The
// preview may be stale; writing to a record that no longer carries one of
// our references would clobber someone else's product.
func (e *Executor) verifyTarget(ctx context.Context, product *catalog.Product, remoteID int64) error {
	records, err := remote.Read(ctx, e.session, "product.template", []int64{remoteID}, []string{"default_code"})
	if err != nil {
		return fmt.Errorf("re-reading remote product: %w", err)
	}
	if len(records) == 0 {
		return &remote.SafetyError{ProductName: product.Name, RemoteReference: "(record deleted)"}
	}

	code, _ := records[0]["default_code"].(string)
	for _, key := range reference.MatchKeys(e.conn, product) {
		if code == key {
			return nil
		}
	}
	return &remote.SafetyError{ProductName: product.Name, RemoteReference: code}
}

// maintainSupplierInfo keeps our supplier pricing row on the remote product.
// Best effort: failures are logged and never fail the product.
func (e *Executor) maintainSupplierInfo(ctx context.Context, product *catalog.Product, remoteID int64) {
	if !e.conn.CreateSupplierInfo || e.conn.SupplierPartnerID == 0 {
		return
	}

	price, err := e.supplierPrice(ctx, product)
	if err != nil {
		log.Warn().Err(err).
			Str("connection_id", e.conn.ID).
			Int64("product_id", product.ID).
			Msg("supplier price unavailable, skipping supplierinfo")
		return
	}

	domain := []interface{}{
		[]interface{}{"partner_id", "=", e.conn.SupplierPartnerID},
		[]interface{}{"product_tmpl_id", "=", remoteID},
	}
	existing, err := remote.Search(ctx, e.session, "product.supplierinfo", domain)
	if err != nil {
		log.Warn().Err(err).Int64("remote_id", remoteID).Msg("supplierinfo lookup failed")
		return
	}

	if len(existing) > 0 {
		err = remote.Write(ctx, e.session, "product.supplierinfo", existing[:1],
			map[string]interface{}{
				"product_code": product.DefaultCode,
				"product_name": product.Name,
				"price":        price,
			})
	} else {
		_, err = remote.Create(ctx, e.session, "product.supplierinfo", map[string]interface{}{
			"partner_id":      e.conn.SupplierPartnerID,
			"product_tmpl_id": remoteID,
			"price":           price,
			"product_code":    product.DefaultCode,
			"product_name":    product.Name,
		})
	}
	if err != nil {
		log.Warn().Err(err).Int64("remote_id", remoteID).Msg("supplierinfo write failed")
	}
}

// supplierPrice evaluates the connection's supplier price policy for one
// product and applies the coefficient.
func (e *Executor) supplierPrice(ctx context.Context, product *catalog.Product) (float64, error) {
	var base float64
	switch e.conn.SupplierInfoPriceField {
	case database.PriceSourceStandardPrice:
		base = product.StandardPrice
	case database.PriceSourcePricelist:
		client, err := e.store.Client(ctx, e.conn.SupplierClientID)
		if err != nil {
			return 0, err
		}
		if client.PricelistID == 0 {
			base = product.ListPrice
		} else {
			base, err = e.store.PricelistPrice(ctx, client.PricelistID, product.ID)
			if err != nil {
				return 0, err
			}
		}
	default:
		base = product.ListPrice
	}

	coeff := e.conn.SupplierInfoPriceCoeff
	if coeff == 0 {
		coeff = 1
	}
	return base * coeff, nil
}
