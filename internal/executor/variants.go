package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/reference"
	"github.com/supplyline/catalog-service/internal/remote"
)

// attrKey identifies one (attribute, value) pair in remote id space.
type attrKey struct {
	attributeID int64
	valueID     int64
}

// syncVariants mirrors the product's used variant combinations onto the
// remote template: merges attribute lines, lets the remote generate the
// variants, then stamps references and price extras on the matches.
func (e *Executor) syncVariants(ctx context.Context, product *catalog.Product, remoteTemplateID int64) (created, updated int, err error) {
	variants := e.usedVariants(ctx, product)
	if len(variants) == 0 {
		return 0, 0, nil
	}

	// union of remote value ids per remote attribute across used variants
	desired := make(map[int64]map[int64]bool)
	remoteValue := make(map[attrKey]attrKey) // local pair -> remote pair
	for _, v := range variants {
		for _, av := range v.AttributeValues {
			remoteAttrID, err := e.reconciler.Attribute(ctx, av.AttributeID, av.AttributeName)
			if err != nil {
				return 0, 0, fmt.Errorf("resolving attribute %s: %w", av.AttributeName, err)
			}
			remoteValID, err := e.reconciler.Value(ctx, av.ValueID, av.ValueName, remoteAttrID)
			if err != nil {
				return 0, 0, fmt.Errorf("resolving value %s: %w", av.ValueName, err)
			}
			if desired[remoteAttrID] == nil {
				desired[remoteAttrID] = make(map[int64]bool)
			}
			desired[remoteAttrID][remoteValID] = true
			remoteValue[attrKey{av.AttributeID, av.ValueID}] = attrKey{remoteAttrID, remoteValID}
		}
	}

	if err := e.mergeAttributeLines(ctx, remoteTemplateID, desired); err != nil {
		return 0, 0, err
	}

	return e.stampVariants(ctx, product, remoteTemplateID, variants, remoteValue)
}

// usedVariants filters to combinations the client actually selected.
// An empty selection means all combinations sync.
func (e *Executor) usedVariants(ctx context.Context, product *catalog.Product) []catalog.Variant {
	selected, err := e.store.SelectedVariantIDs(ctx, e.conn.SupplierClientID, product.ID)
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

// mergeAttributeLines reconciles the template's attribute lines with the
// desired value sets. Existing values stay; ours get added. Removing values
// would delete variants the customer may already sell.
func (e *Executor) mergeAttributeLines(ctx context.Context, remoteTemplateID int64, desired map[int64]map[int64]bool) error {
	lines, err := remote.SearchRead(ctx, e.session, "product.template.attribute.line",
		[]interface{}{[]interface{}{"product_tmpl_id", "=", remoteTemplateID}},
		[]string{"attribute_id", "value_ids"}, 0)
	if err != nil {
		return fmt.Errorf("reading attribute lines: %w", err)
	}

	existing := make(map[int64]struct {
		lineID int64
		values map[int64]bool
	}, len(lines))
	for _, line := range lines {
		attrID := remote.RelationID(line["attribute_id"])
		values := make(map[int64]bool)
		if raw, ok := line["value_ids"].([]interface{}); ok {
			for _, v := range raw {
				values[cast.ToInt64(v)] = true
			}
		}
		existing[attrID] = struct {
			lineID int64
			values map[int64]bool
		}{lineID: remote.RelationID(line["id"]), values: values}
	}

	var commands []interface{}
	for attrID, wantValues := range desired {
		line, ok := existing[attrID]
		if !ok {
			commands = append(commands, []interface{}{0, 0, map[string]interface{}{
				"attribute_id": attrID,
				"value_ids":    []interface{}{[]interface{}{6, 0, keysOf(wantValues)}},
			}})
			continue
		}
		merged := make(map[int64]bool, len(line.values)+len(wantValues))
		grew := false
		for id := range line.values {
			merged[id] = true
		}
		for id := range wantValues {
			if !merged[id] {
				merged[id] = true
				grew = true
			}
		}
		if grew {
			commands = append(commands, []interface{}{1, line.lineID, map[string]interface{}{
				"value_ids": []interface{}{[]interface{}{6, 0, keysOf(merged)}},
			}})
		}
	}

	if len(commands) == 0 {
		return nil
	}
	if err := remote.Write(ctx, e.session, "product.template", []int64{remoteTemplateID},
		map[string]interface{}{"attribute_line_ids": commands}); err != nil {
		return fmt.Errorf("writing attribute lines: %w", err)
	}
	return nil
}

// stampVariants matches the remote-generated variants by their value
// combination and writes references, physicals, and price extras.
func (e *Executor) stampVariants(ctx context.Context, product *catalog.Product, remoteTemplateID int64, variants []catalog.Variant, remoteValue map[attrKey]attrKey) (created, updated int, err error) {
	remoteVariants, err := remote.SearchRead(ctx, e.session, "product.product",
		[]interface{}{[]interface{}{"product_tmpl_id", "=", remoteTemplateID}},
		[]string{"default_code", "product_template_variant_value_ids"}, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("reading remote variants: %w", err)
	}

	// resolve every template attribute value referenced by the variants
	ptavIDs := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, rv := range remoteVariants {
		if raw, ok := rv["product_template_variant_value_ids"].([]interface{}); ok {
			for _, v := range raw {
				id := cast.ToInt64(v)
				if !seen[id] {
					seen[id] = true
					ptavIDs = append(ptavIDs, id)
				}
			}
		}
	}

	ptavPair := make(map[int64]attrKey, len(ptavIDs))  // ptav id -> (attr, value)
	pairPtav := make(map[attrKey]int64, len(ptavIDs))  // (attr, value) -> ptav id
	ptavExtra := make(map[int64]float64, len(ptavIDs)) // ptav id -> current price_extra
	if len(ptavIDs) > 0 {
		ptavs, err := remote.Read(ctx, e.session, "product.template.attribute.value", ptavIDs,
			[]string{"attribute_id", "product_attribute_value_id", "price_extra"})
		if err != nil {
			return 0, 0, fmt.Errorf("reading template attribute values: %w", err)
		}
		for _, rec := range ptavs {
			id := remote.RelationID(rec["id"])
			pair := attrKey{
				attributeID: remote.RelationID(rec["attribute_id"]),
				valueID:     remote.RelationID(rec["product_attribute_value_id"]),
			}
			ptavPair[id] = pair
			pairPtav[pair] = id
			ptavExtra[id] = cast.ToFloat64(rec["price_extra"])
		}
	}

	// index remote variants by their combination
	type remoteVariant struct {
		id   int64
		code string
	}
	byCombo := make(map[string]remoteVariant, len(remoteVariants))
	for _, rv := range remoteVariants {
		var combo []attrKey
		if raw, ok := rv["product_template_variant_value_ids"].([]interface{}); ok {
			for _, v := range raw {
				combo = append(combo, ptavPair[cast.ToInt64(v)])
			}
		}
		code, _ := rv["default_code"].(string)
		byCombo[comboKey(combo)] = remoteVariant{id: remote.RelationID(rv["id"]), code: code}
	}

	for _, v := range variants {
		combo := make([]attrKey, 0, len(v.AttributeValues))
		miss := false
		for _, av := range v.AttributeValues {
			pair, ok := remoteValue[attrKey{av.AttributeID, av.ValueID}]
			if !ok {
				miss = true
				break
			}
			combo = append(combo, pair)
		}
		if miss {
			continue
		}

		rv, ok := byCombo[comboKey(combo)]
		if !ok {
			log.Warn().
				Int64("product_id", product.ID).
				Int64("variant_id", v.ID).
				Msg("remote did not generate a variant for combination")
			continue
		}

		vals := map[string]interface{}{
			"default_code": reference.VariantExternalID(e.conn.SupplierClientID, v.ID),
		}
		if v.Barcode != "" {
			vals["barcode"] = v.Barcode
		}
		if v.Weight != 0 {
			vals["weight"] = v.Weight
		}
		if v.Volume != 0 {
			vals["volume"] = v.Volume
		}
		if e.conn.IncludeImages && v.Image != "" {
			vals["image_variant_1920"] = v.Image
		}
		if err := remote.Write(ctx, e.session, "product.product", []int64{rv.id}, vals); err != nil {
			return created, updated, fmt.Errorf("writing variant %d: %w", v.ID, err)
		}

		for _, av := range v.AttributeValues {
			pair := remoteValue[attrKey{av.AttributeID, av.ValueID}]
			ptavID, ok := pairPtav[pair]
			if !ok || ptavExtra[ptavID] == av.PriceExtra {
				continue
			}
			if err := remote.Write(ctx, e.session, "product.template.attribute.value",
				[]int64{ptavID}, map[string]interface{}{"price_extra": av.PriceExtra}); err != nil {
				return created, updated, fmt.Errorf("writing price extra for variant %d: %w", v.ID, err)
			}
			ptavExtra[ptavID] = av.PriceExtra
		}

		// freshly generated variants carry no reference yet
		if rv.code == "" {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

// keysOf flattens a value set into the sorted id list a 6-0 command expects.
func keysOf(set map[int64]bool) []interface{} {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// comboKey builds an order-independent key for a value combination.
func comboKey(pairs []attrKey) string {
	sorted := make([]attrKey, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].attributeID != sorted[j].attributeID {
			return sorted[i].attributeID < sorted[j].attributeID
		}
		return sorted[i].valueID < sorted[j].valueID
	})
	var b strings.Builder
	for _, p := range sorted {
		b.WriteString(strconv.FormatInt(p.attributeID, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(p.valueID, 10))
		b.WriteByte(';')
	}
	return b.String()
}
