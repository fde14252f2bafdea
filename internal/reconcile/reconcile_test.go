package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplyline/catalog-service/internal/database"
)

type sessionCall struct {
	model  string
	method string
}

// fakeSession scripts remote responses and records every call.
type fakeSession struct {
	calls   []sessionCall
	handler func(model, method string, args []interface{}) (interface{}, error)
}

func (f *fakeSession) ExecuteKw(_ context.Context, model, method string, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	f.calls = append(f.calls, sessionCall{model: model, method: method})
	if f.handler != nil {
		return f.handler(model, method, args)
	}
	return []interface{}{}, nil
}

func (f *fakeSession) callCount(model, method string) int {
	n := 0
	for _, c := range f.calls {
		if c.model == model && c.method == method {
			n++
		}
	}
	return n
}

// memStore keeps mappings in maps, mirroring the repository contract.
type memStore struct {
	categories map[int64]*database.CategoryMapping
	attributes map[int64]*database.AttributeMapping
	values     map[valueKey]*database.AttributeValueMapping
}

func newMemStore() *memStore {
	return &memStore{
		categories: make(map[int64]*database.CategoryMapping),
		attributes: make(map[int64]*database.AttributeMapping),
		values:     make(map[valueKey]*database.AttributeValueMapping),
	}
}

func (s *memStore) CategoryMapping(_ context.Context, _ string, localID int64) (*database.CategoryMapping, error) {
	return s.categories[localID], nil
}

func (s *memStore) SaveCategoryMapping(_ context.Context, m *database.CategoryMapping) error {
	s.categories[m.LocalCategoryID] = m
	return nil
}

func (s *memStore) AttributeMapping(_ context.Context, _ string, localID int64) (*database.AttributeMapping, error) {
	return s.attributes[localID], nil
}

func (s *memStore) SaveAttributeMapping(_ context.Context, m *database.AttributeMapping) error {
	s.attributes[m.LocalAttributeID] = m
	return nil
}

func (s *memStore) AttributeValueMapping(_ context.Context, _ string, localID, remoteAttrID int64) (*database.AttributeValueMapping, error) {
	return s.values[valueKey{localValueID: localID, remoteAttributeID: remoteAttrID}], nil
}

func (s *memStore) SaveAttributeValueMapping(_ context.Context, m *database.AttributeValueMapping) error {
	s.values[valueKey{localValueID: m.LocalValueID, remoteAttributeID: m.RemoteAttributeID}] = m
	return nil
}

func testConn(autoCreate bool) *database.Connection {
	return &database.Connection{ID: "conn-1", AutoCreateCategories: autoCreate}
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "velicina", foldName("Veličina"))
	assert.Equal(t, "boja", foldName(" Boja "))
	assert.Equal(t, "cesnjak", foldName("Češnjak"))
}

func TestCategoryUsesMemoizedMapping(t *testing.T) {
	store := newMemStore()
	store.categories[10] = &database.CategoryMapping{
		ConnectionID: "conn-1", LocalCategoryID: 10, RemoteCategoryID: 77,
	}
	session := &fakeSession{}
	r := New(store, session, testConn(false))

	id, err := r.Category(context.Background(), 10, "Electronics")
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Empty(t, session.calls)
}

func TestCategoryMatchesDiacriticInsensitive(t *testing.T) {
	store := newMemStore()
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if model == "product.category" && method == "search_read" {
				return []interface{}{
					map[string]interface{}{"id": int64(42), "name": "Oprema / Veličine"},
				}, nil
			}
			return []interface{}{}, nil
		},
	}
	r := New(store, session, testConn(false))

	id, err := r.Category(context.Background(), 10, "oprema / velicine")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	saved := store.categories[10]
	require.NotNil(t, saved)
	assert.Equal(t, int64(42), saved.RemoteCategoryID)

	// second resolution comes from the memo
	_, err = r.Category(context.Background(), 10, "oprema / velicine")
	require.NoError(t, err)
	assert.Equal(t, 1, session.callCount("product.category", "search_read"))
}

func TestCategoryAutoCreateDisabled(t *testing.T) {
	store := newMemStore()
	session := &fakeSession{}
	r := New(store, session, testConn(false))

	id, err := r.Category(context.Background(), 10, "Electronics")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Zero(t, session.callCount("product.category", "create"))
	assert.Nil(t, store.categories[10])
}

func TestCategoryAutoCreate(t *testing.T) {
	store := newMemStore()
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(99), nil
			}
			return []interface{}{}, nil
		},
	}
	r := New(store, session, testConn(true))

	id, err := r.Category(context.Background(), 10, "Electronics")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.Equal(t, 1, session.callCount("product.category", "create"))
	require.NotNil(t, store.categories[10])
	assert.Equal(t, int64(99), store.categories[10].RemoteCategoryID)
}

func TestCategoryZeroLocalID(t *testing.T) {
	session := &fakeSession{}
	r := New(newMemStore(), session, testConn(true))

	id, err := r.Category(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, session.calls)
}

func TestAttributeCreatedWhenMissing(t *testing.T) {
	store := newMemStore()
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(5), nil
			}
			return []interface{}{}, nil
		},
	}
	// attribute creation is never gated by the category flag
	r := New(store, session, testConn(false))

	id, err := r.Attribute(context.Background(), 3, "Boja")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, 1, session.callCount("product.attribute", "create"))
	require.NotNil(t, store.attributes[3])
	assert.Equal(t, int64(5), store.attributes[3].RemoteAttributeID)
}

func TestValueScopedToRemoteAttribute(t *testing.T) {
	store := newMemStore()
	var searchDomain []interface{}
	session := &fakeSession{
		handler: func(model, method string, args []interface{}) (interface{}, error) {
			if model == "product.attribute.value" && method == "search_read" {
				searchDomain = args[0].([]interface{})
				return []interface{}{
					map[string]interface{}{"id": int64(301), "name": "Crvena"},
				}, nil
			}
			return []interface{}{}, nil
		},
	}
	r := New(store, session, testConn(false))

	id, err := r.Value(context.Background(), 21, "crvena", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(301), id)

	require.Len(t, searchDomain, 2)
	attrClause := searchDomain[0].([]interface{})
	assert.Equal(t, "attribute_id", attrClause[0])
	assert.Equal(t, int64(5), attrClause[2])

	saved := store.values[valueKey{localValueID: 21, remoteAttributeID: 5}]
	require.NotNil(t, saved)
	assert.Equal(t, int64(301), saved.RemoteValueID)
}

func TestValueCreatedUnderAttribute(t *testing.T) {
	store := newMemStore()
	var createVals map[string]interface{}
	session := &fakeSession{
		handler: func(model, method string, args []interface{}) (interface{}, error) {
			if method == "create" {
				createVals = args[0].(map[string]interface{})
				return int64(302), nil
			}
			return []interface{}{}, nil
		},
	}
	r := New(store, session, testConn(false))

	id, err := r.Value(context.Background(), 22, "Plava", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(302), id)
	require.NotNil(t, createVals)
	assert.Equal(t, "Plava", createVals["name"])
	assert.Equal(t, int64(5), createVals["attribute_id"])
}
