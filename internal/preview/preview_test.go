package preview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

// fakeStore serves canned products; only the methods the generator touches
// are meaningful.
type fakeStore struct {
	products map[int64]*catalog.Product
	selected map[int64][]int64 // productID -> variant selection
}

func (s *fakeStore) Product(_ context.Context, id int64) (*catalog.Product, error) {
	return s.products[id], nil
}

func (s *fakeStore) Products(_ context.Context, ids []int64) ([]*catalog.Product, error) {
	out := make([]*catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Client(_ context.Context, id int64) (*catalog.Client, error) {
	return &catalog.Client{ID: id, Name: "Test Client", IsActive: true}, nil
}

func (s *fakeStore) SelectedProductIDs(_ context.Context, _ int64) ([]int64, error) {
	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) SelectedVariantIDs(_ context.Context, _, productID int64) ([]int64, error) {
	return s.selected[productID], nil
}

func (s *fakeStore) PricelistPrice(_ context.Context, _, _ int64) (float64, error) {
	return 0, nil
}

type fakeSession struct {
	handler func(model, method string, args []interface{}, kw map[string]interface{}) (interface{}, error)
}

func (f *fakeSession) ExecuteKw(_ context.Context, model, method string, args []interface{}, kw map[string]interface{}) (interface{}, error) {
	return f.handler(model, method, args, kw)
}

func previewConn() *database.Connection {
	return &database.Connection{
		ID:               "conn-1",
		SupplierClientID: 7,
		ReferenceMode:    database.RefModeKeepOriginal,
	}
}

func basicMappings() []database.FieldMapping {
	return []database.FieldMapping{
		{SourceField: "name", TargetField: "name", SyncMode: database.SyncModeAlways, IsActive: true},
		{SourceField: "list_price", TargetField: "list_price", SyncMode: database.SyncModeAlways, IsActive: true},
		{SourceField: "standard_price", TargetField: "standard_price", SyncMode: database.SyncModeAlways, IsActive: true},
		{SourceField: "barcode", TargetField: "barcode", SyncMode: database.SyncModeIfEmpty, IsActive: true},
	}
}

func basicProduct() *catalog.Product {
	return &catalog.Product{
		ID:            101,
		Name:          "Widget Pro",
		DefaultCode:   "WID-001",
		ListPrice:     100,
		StandardPrice: 60,
		Barcode:       "4006381333931",
	}
}

// noMatch scripts an empty remote: every search misses.
func noMatchSession() *fakeSession {
	return &fakeSession{
		handler: func(model, method string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
			return []interface{}{}, nil
		},
	}
}

// matchSession scripts one remote template hit and serves its record.
func matchSession(remoteID int64, record map[string]interface{}) *fakeSession {
	return &fakeSession{
		handler: func(model, method string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
			switch {
			case model == "product.template" && method == "search":
				return []interface{}{remoteID}, nil
			case model == "product.template" && method == "read":
				return []interface{}{record}, nil
			default:
				return []interface{}{}, nil
			}
		},
	}
}

func TestClassifyCreate(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	g := NewGenerator(store, noMatchSession(), previewConn(), basicMappings())

	change, err := g.Classify(context.Background(), basicProduct())
	require.NoError(t, err)

	assert.Equal(t, database.ChangeCreate, change.ChangeType)
	assert.Zero(t, change.RemoteProductID)
	assert.Equal(t, "Widget Pro", change.FieldChanges["name"].New)
	assert.Equal(t, 100.0, change.FieldChanges["list_price"].New)
	assert.Nil(t, change.FieldChanges["name"].Old)
	assert.Empty(t, change.Warnings)
}

func TestClassifyUpdateWithDiff(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	session := matchSession(555, map[string]interface{}{
		"id":             int64(555),
		"default_code":   "WID-001",
		"name":           "Widget Pro",
		"list_price":     90.0,
		"standard_price": 60.0,
		"barcode":        false,
	})
	g := NewGenerator(store, session, previewConn(), basicMappings())

	change, err := g.Classify(context.Background(), basicProduct())
	require.NoError(t, err)

	assert.Equal(t, database.ChangeUpdate, change.ChangeType)
	assert.Equal(t, int64(555), change.RemoteProductID)

	// name and standard_price already match; list_price differs; barcode is
	// if_empty and the remote is empty, so it applies too
	require.Contains(t, change.FieldChanges, "list_price")
	assert.Equal(t, 90.0, change.FieldChanges["list_price"].Old)
	assert.Equal(t, 100.0, change.FieldChanges["list_price"].New)
	require.Contains(t, change.FieldChanges, "barcode")
	assert.Nil(t, change.FieldChanges["barcode"].Old)
	assert.NotContains(t, change.FieldChanges, "name")
	assert.NotContains(t, change.FieldChanges, "standard_price")
}

func TestClassifySkipWhenIdentical(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	session := matchSession(555, map[string]interface{}{
		"id":             int64(555),
		"default_code":   "WID-001",
		"name":           "Widget Pro",
		"list_price":     100.0,
		"standard_price": 60.0,
		"barcode":        "4006381333931",
	})
	g := NewGenerator(store, session, previewConn(), basicMappings())

	change, err := g.Classify(context.Background(), basicProduct())
	require.NoError(t, err)
	assert.Equal(t, database.ChangeSkip, change.ChangeType)
	assert.Empty(t, change.FieldChanges)
}

func TestIfEmptySkipsPopulatedRemote(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	session := matchSession(555, map[string]interface{}{
		"id":             int64(555),
		"default_code":   "WID-001",
		"name":           "Widget Pro",
		"list_price":     100.0,
		"standard_price": 60.0,
		"barcode":        "1113331112227", // customer already set one
	})
	g := NewGenerator(store, session, previewConn(), basicMappings())

	change, err := g.Classify(context.Background(), basicProduct())
	require.NoError(t, err)
	assert.NotContains(t, change.FieldChanges, "barcode")
	assert.Equal(t, database.ChangeSkip, change.ChangeType)
}

func TestManualMappingsCompared(t *testing.T) {
	// manual mappings diff like always mappings; only create_only is
	// excluded from update comparison
	mappings := []database.FieldMapping{
		{SourceField: "name", TargetField: "name", SyncMode: database.SyncModeManual, IsActive: true},
		{SourceField: "list_price", TargetField: "list_price", SyncMode: database.SyncModeCreateOnly, IsActive: true},
	}
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	session := matchSession(555, map[string]interface{}{
		"id":             int64(555),
		"default_code":   "WID-001",
		"name":           "Completely Different Name",
		"list_price":     5.0,
		"standard_price": 0.0,
	})
	g := NewGenerator(store, session, previewConn(), mappings)

	change, err := g.Classify(context.Background(), basicProduct())
	require.NoError(t, err)
	assert.Equal(t, database.ChangeUpdate, change.ChangeType)
	require.Contains(t, change.FieldChanges, "name")
	assert.Equal(t, "Completely Different Name", change.FieldChanges["name"].Old)
	assert.Equal(t, "Widget Pro", change.FieldChanges["name"].New)
	assert.NotContains(t, change.FieldChanges, "list_price")
}

func TestCreateRecordsGeneratedReference(t *testing.T) {
	mappings := append(basicMappings(), database.FieldMapping{
		SourceField: "default_code", TargetField: "default_code",
		SyncMode: database.SyncModeAlways, IsActive: true,
	})
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}

	t.Run("custom format replaces the raw code", func(t *testing.T) {
		conn := previewConn()
		conn.ReferenceMode = database.RefModeCustomFormat
		conn.ReferencePrefix = "CAT"
		conn.ReferenceCustomFormat = "{prefix}{ref}-{id}"
		g := NewGenerator(store, noMatchSession(), conn, mappings)

		change, err := g.Classify(context.Background(), basicProduct())
		require.NoError(t, err)
		require.Contains(t, change.FieldChanges, "default_code")
		assert.Equal(t, "CATWID-001-101", change.FieldChanges["default_code"].New)
	})

	t.Run("keep_original carries the raw code", func(t *testing.T) {
		g := NewGenerator(store, noMatchSession(), previewConn(), mappings)

		change, err := g.Classify(context.Background(), basicProduct())
		require.NoError(t, err)
		assert.Equal(t, "WID-001", change.FieldChanges["default_code"].New)
	})

	t.Run("none mode records no reference", func(t *testing.T) {
		conn := previewConn()
		conn.ReferenceMode = database.RefModeNone
		g := NewGenerator(store, noMatchSession(), conn, mappings)

		change, err := g.Classify(context.Background(), basicProduct())
		require.NoError(t, err)
		assert.NotContains(t, change.FieldChanges, "default_code")
	})
}

func TestCostDropWarning(t *testing.T) {
	tests := []struct {
		name     string
		old, new float64
		wantFlag bool
	}{
		{"20 percent drop flagged", 100, 80, true},
		{"exactly 10 percent not flagged", 100, 90, false},
		{"11 percent flagged", 100, 89, true},
		{"increase not flagged", 100, 120, false},
		{"zero old price not flagged", 0, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := costDropWarning(tt.old, tt.new)
			if tt.wantFlag {
				assert.NotEmpty(t, w)
			} else {
				assert.Empty(t, w)
			}
		})
	}
}

func TestCostDropWarningInDiff(t *testing.T) {
	product := basicProduct()
	product.StandardPrice = 80
	store := &fakeStore{products: map[int64]*catalog.Product{101: product}}
	session := matchSession(555, map[string]interface{}{
		"id":             int64(555),
		"default_code":   "WID-001",
		"name":           "Widget Pro",
		"list_price":     100.0,
		"standard_price": 100.0,
		"barcode":        "4006381333931",
	})
	g := NewGenerator(store, session, previewConn(), basicMappings())

	change, err := g.Classify(context.Background(), product)
	require.NoError(t, err)
	require.Len(t, change.Warnings, 1)
	assert.Contains(t, change.Warnings[0], "20.0%")
	assert.Contains(t, change.WarningMessage(), "Cost price decrease")
}

func TestVariantDiffsMatchByReference(t *testing.T) {
	product := basicProduct()
	product.Variants = []catalog.Variant{
		{
			ID:          201,
			DefaultCode: "WID-001-R",
			AttributeValues: []catalog.AttributeValue{
				{AttributeID: 1, AttributeName: "Boja", ValueID: 11, ValueName: "Crvena", PriceExtra: 4},
			},
		},
		{
			ID:          202,
			DefaultCode: "WID-001-B",
			AttributeValues: []catalog.AttributeValue{
				{AttributeID: 1, AttributeName: "Boja", ValueID: 12, ValueName: "Plava"},
			},
		},
	}
	conn := previewConn()
	conn.SyncVariants = true

	session := &fakeSession{
		handler: func(model, method string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
			switch {
			case model == "product.template" && method == "search":
				return []interface{}{int64(555)}, nil
			case model == "product.template" && method == "read":
				return []interface{}{map[string]interface{}{
					"id":             int64(555),
					"default_code":   "WID-001",
					"name":           "Widget Pro",
					"list_price":     100.0,
					"standard_price": 60.0,
					"barcode":        "4006381333931",
				}}, nil
			case model == "product.product" && method == "search_read":
				// only the red variant exists remotely, under the external id
				return []interface{}{map[string]interface{}{
					"id":           int64(901),
					"default_code": "supplier_7_variant_201",
				}}, nil
			}
			return []interface{}{}, nil
		},
	}
	store := &fakeStore{products: map[int64]*catalog.Product{101: product}, selected: map[int64][]int64{}}
	g := NewGenerator(store, session, conn, basicMappings())

	change, err := g.Classify(context.Background(), product)
	require.NoError(t, err)
	require.Len(t, change.VariantChanges, 2)

	assert.Equal(t, VariantUpdate, change.VariantChanges[0].Action)
	assert.Equal(t, int64(901), change.VariantChanges[0].RemoteVariantID)
	assert.Equal(t, "Boja: Crvena", change.VariantChanges[0].Combination)
	assert.Equal(t, 4.0, change.VariantChanges[0].PriceExtra)
	assert.Equal(t, VariantCreate, change.VariantChanges[1].Action)

	// variant work keeps the product on the update path
	assert.Equal(t, database.ChangeUpdate, change.ChangeType)
}

func TestVariantSelectionSubset(t *testing.T) {
	product := basicProduct()
	product.Variants = []catalog.Variant{
		{ID: 201, AttributeValues: []catalog.AttributeValue{{ValueID: 11, ValueName: "Crvena"}}},
		{ID: 202, AttributeValues: []catalog.AttributeValue{{ValueID: 12, ValueName: "Plava"}}},
		{ID: 203}, // no combination, never synced
	}
	conn := previewConn()
	conn.SyncVariants = true
	store := &fakeStore{
		products: map[int64]*catalog.Product{101: product},
		selected: map[int64][]int64{101: {202}},
	}
	g := NewGenerator(store, noMatchSession(), conn, basicMappings())

	change, err := g.Classify(context.Background(), product)
	require.NoError(t, err)
	require.Len(t, change.VariantChanges, 1)
	assert.Equal(t, int64(202), change.VariantChanges[0].VariantID)
}

func TestRunReportsProgress(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	g := NewGenerator(store, noMatchSession(), previewConn(), basicMappings())

	var steps []int
	changes, err := g.Run(context.Background(), []int64{101}, func(current, total int, _ string) error {
		steps = append(steps, current)
		assert.Equal(t, 1, total)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Equal(t, []int{0, 1}, steps)
}

func TestRunAbortsOnProgressError(t *testing.T) {
	store := &fakeStore{products: map[int64]*catalog.Product{101: basicProduct()}}
	g := NewGenerator(store, noMatchSession(), previewConn(), basicMappings())

	_, err := g.Run(context.Background(), []int64{101}, func(int, int, string) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWarningMessageJoins(t *testing.T) {
	c := &Change{Warnings: []string{"first warning", "second warning"}}
	assert.Equal(t, "first warning | second warning", c.WarningMessage())
}
