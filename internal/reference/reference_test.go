package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

func testProduct() *catalog.Product {
	return &catalog.Product{ID: 42, Name: "Test Product", DefaultCode: "TEST001"}
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "supplier_7_product_42", ExternalID(7, 42))
	assert.Equal(t, "supplier_7_variant_99", VariantExternalID(7, 99))
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		conn     database.Connection
		expected string
	}{
		{
			name:     "keep original",
			conn:     database.Connection{ReferenceMode: database.RefModeKeepOriginal},
			expected: "TEST001",
		},
		{
			name:     "supplier ref is an alias for keep original",
			conn:     database.Connection{ReferenceMode: database.RefModeSupplierRef},
			expected: "TEST001",
		},
		{
			name:     "product id",
			conn:     database.Connection{ReferenceMode: database.RefModeProductID},
			expected: "42",
		},
		{
			name:     "none yields empty",
			conn:     database.Connection{ReferenceMode: database.RefModeNone},
			expected: "",
		},
		{
			name: "prefix and suffix joined by separator",
			conn: database.Connection{
				ReferenceMode:      database.RefModeKeepOriginal,
				ReferencePrefix:    "SUP",
				ReferenceSuffix:    "IMP",
				ReferenceSeparator: "-",
			},
			expected: "SUP-TEST001-IMP",
		},
		{
			name: "no separator emitted around absent suffix",
			conn: database.Connection{
				ReferenceMode:      database.RefModeKeepOriginal,
				ReferencePrefix:    "SUP",
				ReferenceSeparator: "-",
			},
			expected: "SUP-TEST001",
		},
		{
			name: "custom format substitutes placeholders exactly",
			conn: database.Connection{
				ReferenceMode:         database.RefModeCustomFormat,
				ReferenceCustomFormat: "{prefix}{ref}-{id}",
				ReferencePrefix:       "CAT",
			},
			expected: "CATTEST001-42",
		},
		{
			name: "custom format ignores prefix wrapping",
			conn: database.Connection{
				ReferenceMode:         database.RefModeCustomFormat,
				ReferenceCustomFormat: "{ref}{separator}{suffix}",
				ReferencePrefix:       "IGNORED",
				ReferenceSuffix:       "X",
				ReferenceSeparator:    "_",
			},
			expected: "TEST001_X",
		},
		{
			name: "custom format without format string falls back to wrapped code",
			conn: database.Connection{
				ReferenceMode:      database.RefModeCustomFormat,
				ReferencePrefix:    "P",
				ReferenceSeparator: "-",
			},
			expected: "P-TEST001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(&tt.conn, testProduct())
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	conn := &database.Connection{
		ReferenceMode:      database.RefModeKeepOriginal,
		ReferencePrefix:    "SUP",
		ReferenceSeparator: "-",
	}
	first := Generate(conn, testProduct())
	second := Generate(conn, testProduct())
	assert.Equal(t, first, second)
}

func TestMatchKeys(t *testing.T) {
	conn := &database.Connection{
		SupplierClientID: 7,
		ReferenceMode:    database.RefModeKeepOriginal,
	}
	keys := MatchKeys(conn, testProduct())
	assert.Equal(t, []string{"supplier_7_product_42", "TEST001"}, keys)

	// none mode: only the external identifier remains searchable
	conn.ReferenceMode = database.RefModeNone
	keys = MatchKeys(conn, testProduct())
	assert.Equal(t, []string{"supplier_7_product_42"}, keys)
}
