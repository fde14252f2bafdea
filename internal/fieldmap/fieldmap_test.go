package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

func strPtr(s string) *string { return &s }

func testProduct() *catalog.Product {
	return &catalog.Product{
		ID:            42,
		Name:          "Widget Pro",
		DefaultCode:   "WID-001",
		ListPrice:     100,
		StandardPrice: 60,
		Weight:        1.5,
		SaleOK:        true,
	}
}

func TestResolveSourceRead(t *testing.T) {
	m := &database.FieldMapping{
		SourceField: "name",
		TargetField: "name",
		SyncMode:    database.SyncModeAlways,
		IsActive:    true,
	}
	assert.Equal(t, "Widget Pro", Resolve(m, testProduct()))
}

func TestResolveAlwaysDefaultIgnoresSource(t *testing.T) {
	m := &database.FieldMapping{
		SourceField:       "list_price",
		TargetField:       "list_price",
		SyncMode:          database.SyncModeAlways,
		DefaultValue:      strPtr("9.99"),
		DefaultValueApply: database.DefaultApplyAlways,
		IsActive:          true,
	}
	// source has list_price=100 but the always-default wins
	assert.Equal(t, 9.99, Resolve(m, testProduct()))
}

func TestResolveSentinelSource(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue *string
		want         interface{}
	}{
		{"with default", strPtr("consu"), "consu"},
		{"without default", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &database.FieldMapping{
				SourceField:       database.SourceFieldNone,
				TargetField:       "detailed_type",
				DefaultValue:      tt.defaultValue,
				DefaultValueApply: database.DefaultApplyIfSourceEmpty,
			}
			assert.Equal(t, tt.want, Resolve(m, testProduct()))
		})
	}
}

func TestResolveIfSourceEmptyDefault(t *testing.T) {
	m := &database.FieldMapping{
		SourceField:       "barcode",
		TargetField:       "barcode",
		DefaultValue:      strPtr("N/A"),
		DefaultValueApply: database.DefaultApplyIfSourceEmpty,
	}
	p := testProduct() // empty barcode
	assert.Equal(t, "N/A", Resolve(m, p))

	p.Barcode = "4006381333931"
	assert.Equal(t, "4006381333931", Resolve(m, p))
}

func TestResolveCoefficient(t *testing.T) {
	m := &database.FieldMapping{
		SourceField:      "standard_price",
		TargetField:      "standard_price",
		ApplyCoefficient: true,
		Coefficient:      1.25,
	}
	assert.InDelta(t, 75.0, Resolve(m, testProduct()).(float64), 1e-9)
}

func TestResolveCoefficientSkipsNonNumeric(t *testing.T) {
	m := &database.FieldMapping{
		SourceField:      "name",
		TargetField:      "name",
		ApplyCoefficient: true,
		Coefficient:      2,
	}
	assert.Equal(t, "Widget Pro", Resolve(m, testProduct()))
}

func TestConvertDefault(t *testing.T) {
	tests := []struct {
		name        string
		targetField string
		raw         string
		want        interface{}
	}{
		{"float", "list_price", "12.50", 12.5},
		{"float garbage falls back to zero", "list_price", "abc", 0.0},
		{"integer", "categ_id", "7", int64(7)},
		{"bool true", "sale_ok", "true", true},
		{"bool one", "sale_ok", "1", true},
		{"bool garbage falls back to false", "sale_ok", "maybe", false},
		{"char passthrough", "name", "hello", "hello"},
		{"selection passthrough", "detailed_type", "consu", "consu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &database.FieldMapping{TargetField: tt.targetField, DefaultValue: &tt.raw}
			assert.Equal(t, tt.want, ConvertDefault(m))
		})
	}
}

func TestEligibleForUpdate(t *testing.T) {
	assert.False(t, EligibleForUpdate(&database.FieldMapping{IsActive: true, SyncMode: database.SyncModeCreateOnly}))
	assert.False(t, EligibleForUpdate(&database.FieldMapping{IsActive: false, SyncMode: database.SyncModeAlways}))
	assert.True(t, EligibleForUpdate(&database.FieldMapping{IsActive: true, SyncMode: database.SyncModeAlways}))
	assert.True(t, EligibleForUpdate(&database.FieldMapping{IsActive: true, SyncMode: database.SyncModeIfEmpty}))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(false))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(0.0))
	assert.True(t, IsEmpty([]interface{}{}))
	assert.False(t, IsEmpty("x"))
	assert.False(t, IsEmpty(0.01))
	assert.False(t, IsEmpty(true))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name   string
		local  interface{}
		remote interface{}
		want   bool
	}{
		{"remote false means empty string", "", false, true},
		{"numeric cross-type", 100.0, int64(100), true},
		{"numeric mismatch", 100.0, 99.5, false},
		{"many2one pair matches id", int64(7), []interface{}{int64(7), "All / Misc"}, true},
		{"many2one pair mismatch", int64(7), []interface{}{int64(8), "Other"}, false},
		{"string equality", "Widget", "Widget", true},
		{"bool vs remote bool", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.local, tt.remote))
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate())
}

func TestKnownFields(t *testing.T) {
	assert.True(t, KnownSourceField("name"))
	assert.True(t, KnownSourceField(database.SourceFieldNone))
	assert.False(t, KnownSourceField("nonexistent"))
	assert.True(t, KnownTargetField("list_price"))
	assert.False(t, KnownTargetField("description")) // source-only
}
