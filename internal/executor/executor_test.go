package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/reconcile"
	"github.com/supplyline/catalog-service/internal/remote"
)

type recordedCall struct {
	model  string
	method string
	args   []interface{}
}

type fakeSession struct {
	calls   []recordedCall
	handler func(model, method string, args []interface{}) (interface{}, error)
}

func (f *fakeSession) ExecuteKw(_ context.Context, model, method string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	f.calls = append(f.calls, recordedCall{model: model, method: method, args: args})
	if f.handler != nil {
		return f.handler(model, method, args)
	}
	return []interface{}{}, nil
}

func (f *fakeSession) created(model string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, c := range f.calls {
		if c.model == model && c.method == "create" {
			out = append(out, c.args[0].(map[string]interface{}))
		}
	}
	return out
}

func (f *fakeSession) written(model string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, c := range f.calls {
		if c.model == model && c.method == "write" {
			out = append(out, c.args[1].(map[string]interface{}))
		}
	}
	return out
}

type fakeStore struct {
	products map[int64]*catalog.Product
	client   *catalog.Client
}

func (s *fakeStore) Product(_ context.Context, id int64) (*catalog.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrNotFound
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
	if s.client != nil {
		return s.client, nil
	}
	return &catalog.Client{ID: id, Name: "Client", IsActive: true}, nil
}

func (s *fakeStore) SelectedProductIDs(_ context.Context, _ int64) ([]int64, error) { return nil, nil }

func (s *fakeStore) SelectedVariantIDs(_ context.Context, _, _ int64) ([]int64, error) {
	return nil, nil
}

func (s *fakeStore) PricelistPrice(_ context.Context, _, _ int64) (float64, error) { return 45, nil }

// memMappings is a throwaway reconcile.Store with everything pre-resolved
// or accepting saves.
type memMappings struct {
	categories map[int64]*database.CategoryMapping
}

func (s *memMappings) CategoryMapping(_ context.Context, _ string, localID int64) (*database.CategoryMapping, error) {
	if s.categories == nil {
		return nil, nil
	}
	return s.categories[localID], nil
}
func (s *memMappings) SaveCategoryMapping(_ context.Context, _ *database.CategoryMapping) error {
	return nil
}
func (s *memMappings) AttributeMapping(_ context.Context, _ string, _ int64) (*database.AttributeMapping, error) {
	return nil, nil
}
func (s *memMappings) SaveAttributeMapping(_ context.Context, _ *database.AttributeMapping) error {
	return nil
}
func (s *memMappings) AttributeValueMapping(_ context.Context, _ string, _, _ int64) (*database.AttributeValueMapping, error) {
	return nil, nil
}
func (s *memMappings) SaveAttributeValueMapping(_ context.Context, _ *database.AttributeValueMapping) error {
	return nil
}

func execConn() *database.Connection {
	return &database.Connection{
		ID:               "conn-1",
		SupplierClientID: 7,
		ReferenceMode:    database.RefModeKeepOriginal,
	}
}

func execProduct() *catalog.Product {
	return &catalog.Product{
		ID:            101,
		Name:          "Widget Pro",
		DefaultCode:   "WID-001",
		ListPrice:     100,
		StandardPrice: 60,
		CategoryID:    10,
		CategoryName:  "Electronics",
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func newExecutor(session *fakeSession, conn *database.Connection, store *fakeStore) *Executor {
	mappings := &memMappings{categories: map[int64]*database.CategoryMapping{
		10: {ConnectionID: conn.ID, LocalCategoryID: 10, RemoteCategoryID: 44},
	}}
	rec := reconcile.New(mappings, session, conn)
	return New(store, session, conn, rec)
}

func TestExecuteCreate(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if model == "product.template" && method == "create" {
				return int64(777), nil
			}
			return []interface{}{}, nil
		},
	}
	store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
	exec := newExecutor(session, execConn(), store)

	change := &database.SyncChange{
		ProductID:   101,
		ProductName: "Widget Pro",
		ChangeType:  database.ChangeCreate,
		FieldChanges: mustJSON(t, map[string]map[string]interface{}{
			"name":       {"new": "Widget Pro"},
			"list_price": {"new": 100.0},
		}),
	}

	result, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, database.ChangeCreate, result.Action)
	assert.Equal(t, int64(777), result.RemoteProductID)

	creates := session.created("product.template")
	require.Len(t, creates, 1)
	vals := creates[0]
	assert.Equal(t, "Widget Pro", vals["name"])
	assert.Equal(t, 100.0, vals["list_price"])
	// keep_original mode carries the local reference
	assert.Equal(t, "WID-001", vals["default_code"])
	// unmapped essentials are backfilled
	assert.Equal(t, "product", vals["detailed_type"])
	assert.Equal(t, true, vals["sale_ok"])
	assert.Equal(t, true, vals["purchase_ok"])
	// category resolved through the memoized mapping
	assert.Equal(t, int64(44), vals["categ_id"])
}

func TestExecuteCreateFallsBackToExternalID(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(778), nil
			}
			return []interface{}{}, nil
		},
	}
	product := execProduct()
	product.DefaultCode = ""
	conn := execConn()
	conn.ReferenceMode = database.RefModeNone
	store := &fakeStore{products: map[int64]*catalog.Product{101: product}}
	exec := newExecutor(session, conn, store)

	change := &database.SyncChange{ProductID: 101, ChangeType: database.ChangeCreate}
	_, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)

	vals := session.created("product.template")[0]
	assert.Equal(t, "supplier_7_product_101", vals["default_code"])
}

func TestExecuteUpdateVerifiesTarget(t *testing.T) {
	tests := []struct {
		name       string
		remoteCode string
		wantSafety bool
	}{
		{"external id accepted", "supplier_7_product_101", false},
		{"human reference accepted", "WID-001", false},
		{"foreign reference rejected", "SOMEONE-ELSES-SKU", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{
				handler: func(model, method string, _ []interface{}) (interface{}, error) {
					if model == "product.template" && method == "read" {
						return []interface{}{map[string]interface{}{
							"id": int64(555), "default_code": tt.remoteCode,
						}}, nil
					}
					return []interface{}{}, nil
				},
			}
			store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
			exec := newExecutor(session, execConn(), store)

			change := &database.SyncChange{
				ProductID:       101,
				ProductName:     "Widget Pro",
				ChangeType:      database.ChangeUpdate,
				RemoteProductID: 555,
				FieldChanges: mustJSON(t, map[string]map[string]interface{}{
					"list_price": {"old": 90.0, "new": 100.0},
				}),
			}
			result, err := exec.Execute(context.Background(), change)
			if tt.wantSafety {
				var safety *remote.SafetyError
				require.ErrorAs(t, err, &safety)
				assert.Equal(t, "SOMEONE-ELSES-SKU", safety.RemoteReference)
				// nothing written to the remote
				for _, c := range session.calls {
					assert.NotEqual(t, "write", c.method)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, database.ChangeUpdate, result.Action)
		})
	}
}

func TestExecuteSkipTouchesNothing(t *testing.T) {
	session := &fakeSession{}
	store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
	exec := newExecutor(session, execConn(), store)

	for _, change := range []*database.SyncChange{
		{ProductID: 101, ChangeType: database.ChangeSkip},
		{ProductID: 101, ChangeType: database.ChangeUpdate, IsExcluded: true},
	} {
		result, err := exec.Execute(context.Background(), change)
		require.NoError(t, err)
		assert.Equal(t, database.ChangeSkip, result.Action)
	}
	assert.Empty(t, session.calls)
}

func TestSupplierInfoCreatedOnCreate(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				if model == "product.template" {
					return int64(777), nil
				}
				return int64(12), nil
			}
			return []interface{}{}, nil
		},
	}
	conn := execConn()
	conn.CreateSupplierInfo = true
	conn.SupplierPartnerID = 33
	conn.SupplierInfoPriceField = database.PriceSourceStandardPrice
	conn.SupplierInfoPriceCoeff = 0.9
	store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
	exec := newExecutor(session, conn, store)

	change := &database.SyncChange{ProductID: 101, ChangeType: database.ChangeCreate}
	_, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)

	infos := session.created("product.supplierinfo")
	require.Len(t, infos, 1)
	assert.Equal(t, int64(33), infos[0]["partner_id"])
	assert.Equal(t, int64(777), infos[0]["product_tmpl_id"])
	assert.InDelta(t, 54.0, infos[0]["price"].(float64), 1e-9) // 60 * 0.9
}

func TestSupplierInfoPricelistSource(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				if model == "product.template" {
					return int64(777), nil
				}
				return int64(12), nil
			}
			return []interface{}{}, nil
		},
	}
	conn := execConn()
	conn.CreateSupplierInfo = true
	conn.SupplierPartnerID = 33
	conn.SupplierInfoPriceField = database.PriceSourcePricelist
	store := &fakeStore{
		products: map[int64]*catalog.Product{101: execProduct()},
		client:   &catalog.Client{ID: 7, PricelistID: 5},
	}
	exec := newExecutor(session, conn, store)

	change := &database.SyncChange{ProductID: 101, ChangeType: database.ChangeCreate}
	_, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)

	infos := session.created("product.supplierinfo")
	require.Len(t, infos, 1)
	assert.InDelta(t, 45.0, infos[0]["price"].(float64), 1e-9)
}

func TestSupplierInfoFailureIsNotFatal(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if model == "product.template" && method == "create" {
				return int64(777), nil
			}
			if model == "product.supplierinfo" {
				return nil, errors.New("access denied")
			}
			return []interface{}{}, nil
		},
	}
	conn := execConn()
	conn.CreateSupplierInfo = true
	conn.SupplierPartnerID = 33
	store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
	exec := newExecutor(session, conn, store)

	change := &database.SyncChange{ProductID: 101, ChangeType: database.ChangeCreate}
	result, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, int64(777), result.RemoteProductID)
}

func TestUpdateImagePreserve(t *testing.T) {
	tests := []struct {
		name        string
		preserve    bool
		remoteImage interface{}
		wantPush    bool
	}{
		{"preserve fills empty remote", true, false, true},
		{"preserve keeps remote image", true, "cmVtb3RlLWltYWdl", false},
		{"no preserve always pushes", false, "cmVtb3RlLWltYWdl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{
				handler: func(model, method string, _ []interface{}) (interface{}, error) {
					if model == "product.template" && method == "read" {
						return []interface{}{map[string]interface{}{
							"id":           int64(555),
							"default_code": "WID-001",
							"image_1920":   tt.remoteImage,
						}}, nil
					}
					return []interface{}{}, nil
				},
			}
			conn := execConn()
			conn.IncludeImages = true
			conn.PreserveRemoteImages = tt.preserve
			product := execProduct()
			product.Image = "bG9jYWwtaW1hZ2U="
			store := &fakeStore{products: map[int64]*catalog.Product{101: product}}
			exec := newExecutor(session, conn, store)

			change := &database.SyncChange{
				ProductID:       101,
				ProductName:     "Widget Pro",
				ChangeType:      database.ChangeUpdate,
				RemoteProductID: 555,
				FieldChanges: mustJSON(t, map[string]map[string]interface{}{
					"list_price": {"old": 90.0, "new": 100.0},
				}),
			}
			_, err := exec.Execute(context.Background(), change)
			require.NoError(t, err)

			writes := session.written("product.template")
			require.Len(t, writes, 1)
			if tt.wantPush {
				assert.Equal(t, "bG9jYWwtaW1hZ2U=", writes[0]["image_1920"])
			} else {
				assert.NotContains(t, writes[0], "image_1920")
			}
		})
	}
}

func TestSupplierInfoUpdateRewritesCodeAndName(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if model == "product.template" && method == "create" {
				return int64(777), nil
			}
			if model == "product.supplierinfo" && method == "search" {
				return []interface{}{int64(12)}, nil
			}
			return []interface{}{}, nil
		},
	}
	conn := execConn()
	conn.CreateSupplierInfo = true
	conn.SupplierPartnerID = 33
	store := &fakeStore{products: map[int64]*catalog.Product{101: execProduct()}}
	exec := newExecutor(session, conn, store)

	change := &database.SyncChange{ProductID: 101, ChangeType: database.ChangeCreate}
	_, err := exec.Execute(context.Background(), change)
	require.NoError(t, err)

	assert.Empty(t, session.created("product.supplierinfo"))
	writes := session.written("product.supplierinfo")
	require.Len(t, writes, 1)
	assert.Equal(t, "WID-001", writes[0]["product_code"])
	assert.Equal(t, "Widget Pro", writes[0]["product_name"])
	assert.InDelta(t, 100.0, writes[0]["price"].(float64), 1e-9)
}
