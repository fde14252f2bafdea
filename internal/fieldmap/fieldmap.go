// Package fieldmap resolves field mapping rules against local products and
// formats values for comparison with what the remote already holds.
package fieldmap

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

// FieldType drives default-value conversion per target field.
type FieldType string

const (
	TypeChar      FieldType = "char"
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeBoolean   FieldType = "boolean"
	TypeSelection FieldType = "selection"
)

// targetFieldTypes is the fixed target-field to type table.
var targetFieldTypes = map[string]FieldType{
	"name":                 TypeChar,
	"default_code":         TypeChar,
	"list_price":           TypeFloat,
	"standard_price":       TypeFloat,
	"barcode":              TypeChar,
	"weight":               TypeFloat,
	"volume":               TypeFloat,
	"description_sale":     TypeText,
	"description_purchase": TypeText,
	"categ_id":             TypeInteger,
	"type":                 TypeSelection,
	"detailed_type":        TypeSelection,
	"sale_ok":              TypeBoolean,
	"purchase_ok":          TypeBoolean,
	"is_published":         TypeBoolean,
}

// sourceAccessors maps configurable source field names to typed extractors,
// keeping exhaustiveness checkable while the selection stays config-driven.
var sourceAccessors = map[string]func(*catalog.Product) interface{}{
	"name":                 func(p *catalog.Product) interface{} { return p.Name },
	"default_code":         func(p *catalog.Product) interface{} { return p.DefaultCode },
	"barcode":              func(p *catalog.Product) interface{} { return p.Barcode },
	"list_price":           func(p *catalog.Product) interface{} { return p.ListPrice },
	"standard_price":       func(p *catalog.Product) interface{} { return p.StandardPrice },
	"weight":               func(p *catalog.Product) interface{} { return p.Weight },
	"volume":               func(p *catalog.Product) interface{} { return p.Volume },
	"description_sale":     func(p *catalog.Product) interface{} { return p.DescriptionSale },
	"description":          func(p *catalog.Product) interface{} { return p.Description },
	"description_purchase": func(p *catalog.Product) interface{} { return p.DescriptionPurchase },
	"categ_id":             func(p *catalog.Product) interface{} { return p.CategoryID },
	"detailed_type":        func(p *catalog.Product) interface{} { return p.DetailedType },
	"sale_ok":              func(p *catalog.Product) interface{} { return p.SaleOK },
	"purchase_ok":          func(p *catalog.Product) interface{} { return p.PurchaseOK },
	"is_published":         func(p *catalog.Product) interface{} { return p.IsPublished },
}

// KnownSourceField reports whether a source field name is configurable.
func KnownSourceField(name string) bool {
	if name == database.SourceFieldNone {
		return true
	}
	_, ok := sourceAccessors[name]
	return ok
}

// KnownTargetField reports whether a target field name is configurable.
func KnownTargetField(name string) bool {
	_, ok := targetFieldTypes[name]
	return ok
}

// Validate checks the type table covers every accessor-backed field that can
// also appear as a target. Called once at startup.
func Validate() error {
	for name := range sourceAccessors {
		if name == "description" {
			// source-only field, never a target
			continue
		}
		if _, ok := targetFieldTypes[name]; !ok {
			return fmt.Errorf("fieldmap: source field %q has no target type entry", name)
		}
	}
	return nil
}

// TargetType returns the type of a target field, defaulting to char.
func TargetType(targetField string) FieldType {
	if t, ok := targetFieldTypes[targetField]; ok {
		return t
	}
	return TypeChar
}

// ConvertDefault converts a mapping's stored text default to the target
// field's type. Conversion failures fall back to a type-appropriate zero
// value rather than raising.
func ConvertDefault(m *database.FieldMapping) interface{} {
	if m.DefaultValue == nil || *m.DefaultValue == "" {
		return nil
	}
	raw := strings.TrimSpace(*m.DefaultValue)

	switch TargetType(m.TargetField) {
	case TypeFloat:
		if f, err := cast.ToFloat64E(raw); err == nil {
			return f
		}
		return 0.0
	case TypeInteger:
		if n, err := cast.ToInt64E(raw); err == nil {
			return n
		}
		return int64(0)
	case TypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true
		}
		return false
	default:
		return raw
	}
}

// Resolve computes the effective value for a mapping given a source product.
// Resolution order: always-default, sentinel source, source read,
// if-source-empty default, coefficient.
func Resolve(m *database.FieldMapping, product *catalog.Product) interface{} {
	defaultVal := ConvertDefault(m)
	hasDefault := m.DefaultValue != nil && *m.DefaultValue != ""

	// Always use the default, ignoring the source entirely
	if m.DefaultValueApply == database.DefaultApplyAlways && hasDefault {
		return defaultVal
	}

	// Target-only mapping: the default is the only possible value
	if m.SourceField == database.SourceFieldNone {
		if hasDefault {
			return defaultVal
		}
		return nil
	}

	var value interface{}
	if product != nil {
		if accessor, ok := sourceAccessors[m.SourceField]; ok {
			value = accessor(product)
		}
	}

	if m.DefaultValueApply == database.DefaultApplyIfSourceEmpty && IsEmpty(value) && hasDefault {
		return defaultVal
	}

	if m.ApplyCoefficient {
		if f, err := cast.ToFloat64E(value); err == nil {
			switch value.(type) {
			case float64, float32, int, int64, int32:
				return f * m.Coefficient
			}
		}
	}

	return value
}

// EligibleForUpdate reports whether a mapping participates in update diffing.
// create_only mappings only apply on creation; if_empty skipping against the
// actual remote value is the caller's decision.
func EligibleForUpdate(m *database.FieldMapping) bool {
	return m.IsActive && m.SyncMode != database.SyncModeCreateOnly
}

// ActiveMappings filters and returns mappings in sequence order. The input is
// assumed sequence-sorted by the repository.
func ActiveMappings(mappings []database.FieldMapping) []database.FieldMapping {
	return lo.Filter(mappings, func(m database.FieldMapping, _ int) bool {
		return m.IsActive
	})
}

// IsEmpty reports whether a value is empty/falsy in the remote system's
// sense: nil, false, empty string, or numeric zero.
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case float64:
		return val == 0
	case float32:
		return val == 0
	case int:
		return val == 0
	case int32:
		return val == 0
	case int64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	default:
		return false
	}
}

// Equal compares a resolved local value with a remote field value, tolerating
// the remote's loose typing: false stands in for any empty field, numbers
// arrive as float64 or int64, and many2one values as [id, name] pairs.
func Equal(local, remote interface{}) bool {
	if IsEmpty(local) && IsEmpty(remote) {
		return true
	}

	// many2one: compare against the id
	if pair, ok := remote.([]interface{}); ok && len(pair) == 2 {
		if id, err := cast.ToInt64E(pair[0]); err == nil {
			if localID, err := cast.ToInt64E(local); err == nil {
				return localID == id
			}
		}
	}

	switch local.(type) {
	case float64, float32, int, int32, int64:
		lf, lerr := cast.ToFloat64E(local)
		rf, rerr := cast.ToFloat64E(remote)
		if lerr == nil && rerr == nil {
			return lf == rf
		}
	case bool:
		return cast.ToBool(local) == cast.ToBool(remote)
	}

	return cast.ToString(local) == cast.ToString(remote)
}
