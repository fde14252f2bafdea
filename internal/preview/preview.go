// Package preview classifies selected products against a remote instance
// into create, update, or skip, and records the exact field-level diff that
// an execution would apply. Nothing here writes to the remote.
package preview

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/fieldmap"
	"github.com/supplyline/catalog-service/internal/reference"
	"github.com/supplyline/catalog-service/internal/remote"
)

// costDropThreshold is the fraction below which a standard_price decrease
// gets flagged for review.
const costDropThreshold = 0.10

// FieldDiff is one field's before/after pair.
type FieldDiff struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Variant diff actions
const (
	VariantCreate = "create"
	VariantUpdate = "update"
)

// VariantDiff describes what execution would do with one variant.
type VariantDiff struct {
	VariantID       int64                `json:"variantId"`
	RemoteVariantID int64                `json:"remoteVariantId,omitempty"`
	Action          string               `json:"action"`
	Combination     string               `json:"combination"`
	DefaultCode     string               `json:"defaultCode,omitempty"`
	PriceExtra      float64              `json:"priceExtra"`
	Changes         map[string]FieldDiff `json:"changes,omitempty"`
}

// Change is one product's classification before persistence.
type Change struct {
	ProductID   int64
	ProductName string
	ProductRef  string

	ChangeType      string
	RemoteProductID int64

	FieldChanges   map[string]FieldDiff
	VariantChanges []VariantDiff

	Warnings []string
}

// WarningMessage joins accumulated warnings for storage.
func (c *Change) WarningMessage() string {
	return strings.Join(c.Warnings, " | ")
}

// ProgressFunc reports per-product progress. Returning an error aborts the
// run; the runner uses this to surface a requested cancellation.
type ProgressFunc func(current, total int, message string) error

// Generator classifies one connection's selection against a live session.
type Generator struct {
	store    catalog.Store
	session  remote.Session
	conn     *database.Connection
	mappings []database.FieldMapping
}

func NewGenerator(store catalog.Store, session remote.Session, conn *database.Connection, mappings []database.FieldMapping) *Generator {
	return &Generator{
		store:    store,
		session:  session,
		conn:     conn,
		mappings: fieldmap.ActiveMappings(mappings),
	}
}

// Run classifies every product in ids, reporting progress after each one.
// A failing product aborts the run; analysis has no partial value.
func (g *Generator) Run(ctx context.Context, ids []int64, progress ProgressFunc) ([]*Change, error) {
	products, err := g.store.Products(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading selected products: %w", err)
	}

	changes := make([]*Change, 0, len(products))
	total := len(products)
	for i, product := range products {
		if progress != nil {
			if err := progress(i, total, product.Name); err != nil {
				return nil, err
			}
		}
		change, err := g.Classify(ctx, product)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s: %w", product.Name, err)
		}
		changes = append(changes, change)
	}
	if progress != nil {
		if err := progress(total, total, "analysis complete"); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

// Classify matches one product on the remote and computes its diff.
func (g *Generator) Classify(ctx context.Context, product *catalog.Product) (*Change, error) {
	change := &Change{
		ProductID:   product.ID,
		ProductName: product.Name,
		ProductRef:  product.DefaultCode,
	}

	keys := reference.MatchKeys(g.conn, product)
	matches, err := remote.Search(ctx, g.session, "product.template",
		[]interface{}{[]interface{}{"default_code", "in", toAnySlice(keys)}})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		change.ChangeType = database.ChangeCreate
		change.FieldChanges = g.createChanges(product)
		if g.conn.SyncVariants {
			change.VariantChanges = g.variantCreates(ctx, product, nil)
		}
		return change, nil
	}

	remoteID := matches[0]
	change.RemoteProductID = remoteID
	if len(matches) > 1 {
		log.Warn().
			Str("connection_id", g.conn.ID).
			Int64("product_id", product.ID).
			Ints64("remote_ids", matches).
			Msg("multiple remote matches, using first")
	}

	remoteRec, err := g.readRemote(ctx, remoteID)
	if err != nil {
		return nil, err
	}

	change.FieldChanges = g.updateChanges(product, remoteRec, change)
	if g.conn.SyncVariants {
		diffs, err := g.variantDiffs(ctx, product, remoteID)
		if err != nil {
			return nil, err
		}
		change.VariantChanges = diffs
	}

	if len(change.FieldChanges) == 0 && len(change.VariantChanges) == 0 {
		change.ChangeType = database.ChangeSkip
	} else {
		change.ChangeType = database.ChangeUpdate
	}
	return change, nil
}

// createChanges resolves every active mapping for a new remote record.
// Old values are nil since nothing exists yet. The reference policy owns
// default_code: outside keep_original mode the raw mapping is skipped and
// the generated reference is recorded instead.
func (g *Generator) createChanges(product *catalog.Product) map[string]FieldDiff {
	out := make(map[string]FieldDiff)
	for i := range g.mappings {
		m := &g.mappings[i]
		if m.TargetField == "categ_id" {
			// category resolution happens at execution via the reconciler
			continue
		}
		if m.TargetField == "default_code" && g.conn.ReferenceMode != database.RefModeKeepOriginal {
			continue
		}
		value := fieldmap.Resolve(m, product)
		if value == nil {
			continue
		}
		out[m.TargetField] = FieldDiff{Old: nil, New: value}
	}
	if ref := reference.Generate(g.conn, product); ref != "" {
		out["default_code"] = FieldDiff{Old: nil, New: ref}
	}
	return out
}

// updateChanges compares update-eligible mappings against the remote record.
func (g *Generator) updateChanges(product *catalog.Product, remoteRec map[string]interface{}, change *Change) map[string]FieldDiff {
	out := make(map[string]FieldDiff)
	for i := range g.mappings {
		m := &g.mappings[i]
		if !fieldmap.EligibleForUpdate(m) || m.TargetField == "categ_id" {
			continue
		}
		remoteVal := remoteRec[m.TargetField]
		if m.SyncMode == database.SyncModeIfEmpty && !fieldmap.IsEmpty(remoteVal) {
			continue
		}
		localVal := fieldmap.Resolve(m, product)
		if localVal == nil || fieldmap.Equal(localVal, remoteVal) {
			continue
		}
		out[m.TargetField] = FieldDiff{Old: normalizeOld(remoteVal), New: localVal}

		if m.TargetField == "standard_price" {
			if w := costDropWarning(remoteVal, localVal); w != "" {
				change.Warnings = append(change.Warnings, w)
			}
		}
	}
	return out
}

func (g *Generator) readRemote(ctx context.Context, remoteID int64) (map[string]interface{}, error) {
	fields := make([]string, 0, len(g.mappings)+2)
	seen := map[string]bool{"default_code": true, "standard_price": true}
	fields = append(fields, "default_code", "standard_price")
	for _, m := range g.mappings {
		if !seen[m.TargetField] {
			seen[m.TargetField] = true
			fields = append(fields, m.TargetField)
		}
	}
	records, err := remote.Read(ctx, g.session, "product.template", []int64{remoteID}, fields)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("remote product %d vanished during analysis", remoteID)
	}
	return records[0], nil
}

// usedVariants returns the variants execution would touch: combinations only,
// filtered to the client's explicit selection when one exists.
func (g *Generator) usedVariants(ctx context.Context, product *catalog.Product) []catalog.Variant {
	selected, err := g.store.SelectedVariantIDs(ctx, g.conn.SupplierClientID, product.ID)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("variant selection unavailable, syncing all")
		selected = nil
	}
	allow := make(map[int64]bool, len(selected))
	for _, id := range selected {
		allow[id] = true
	}

	out := make([]catalog.Variant, 0, len(product.Variants))
	for _, v := range product.Variants {
		if !v.HasAttributeValues() {
			continue
		}
		if len(allow) > 0 && !allow[v.ID] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (g *Generator) variantCreates(ctx context.Context, product *catalog.Product, _ []int64) []VariantDiff {
	variants := g.usedVariants(ctx, product)
	out := make([]VariantDiff, 0, len(variants))
	for _, v := range variants {
		out = append(out, VariantDiff{
			VariantID:   v.ID,
			Action:      VariantCreate,
			Combination: combinationLabel(&v),
			DefaultCode: v.DefaultCode,
			PriceExtra:  variantPriceExtra(&v),
		})
	}
	return out
}

// variantDiffs matches local variants against the remote template's variants
// by reference and reports what execution would create or adjust.
func (g *Generator) variantDiffs(ctx context.Context, product *catalog.Product, remoteTemplateID int64) ([]VariantDiff, error) {
	variants := g.usedVariants(ctx, product)
	if len(variants) == 0 {
		return nil, nil
	}

	remoteVariants, err := remote.SearchRead(ctx, g.session, "product.product",
		[]interface{}{[]interface{}{"product_tmpl_id", "=", remoteTemplateID}},
		[]string{"default_code"}, 0)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]int64, len(remoteVariants))
	for _, rec := range remoteVariants {
		if code, ok := rec["default_code"].(string); ok && code != "" {
			byCode[code] = remote.RelationID(rec["id"])
		}
	}

	out := make([]VariantDiff, 0, len(variants))
	for _, v := range variants {
		extID := reference.VariantExternalID(g.conn.SupplierClientID, v.ID)
		remoteID := byCode[extID]
		if remoteID == 0 && v.DefaultCode != "" {
			remoteID = byCode[v.DefaultCode]
		}
		diff := VariantDiff{
			VariantID:   v.ID,
			Action:      VariantCreate,
			Combination: combinationLabel(&v),
			DefaultCode: v.DefaultCode,
			PriceExtra:  variantPriceExtra(&v),
		}
		if remoteID != 0 {
			diff.Action = VariantUpdate
			diff.RemoteVariantID = remoteID
		}
		out = append(out, diff)
	}
	return out, nil
}

// combinationLabel renders the variant's combination as
// "Attribute: Value, Attribute: Value".
func combinationLabel(v *catalog.Variant) string {
	parts := make([]string, 0, len(v.AttributeValues))
	for _, av := range v.AttributeValues {
		parts = append(parts, av.AttributeName+": "+av.ValueName)
	}
	return strings.Join(parts, ", ")
}

// variantPriceExtra sums the surcharge across the combination's values.
func variantPriceExtra(v *catalog.Variant) float64 {
	var sum float64
	for _, av := range v.AttributeValues {
		sum += av.PriceExtra
	}
	return sum
}

// costDropWarning flags standard_price decreases beyond the threshold.
func costDropWarning(oldVal, newVal interface{}) string {
	oldF, oErr := cast.ToFloat64E(oldVal)
	newF, nErr := cast.ToFloat64E(newVal)
	if oErr != nil || nErr != nil || oldF <= 0 || newF >= oldF {
		return ""
	}
	drop := (oldF - newF) / oldF
	if drop <= costDropThreshold {
		return ""
	}
	return fmt.Sprintf("Cost price decrease %.1f%% (%.2f -> %.2f)", drop*100, oldF, newF)
}

// normalizeOld turns remote falsy markers into nil so stored diffs do not
// show literal false for empty char fields.
func normalizeOld(v interface{}) interface{} {
	if b, ok := v.(bool); ok && !b {
		return nil
	}
	return v
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
