// Package reconcile resolves local categories, attributes, and attribute
// values to their remote counterparts, memoizing every resolution so repeat
// syncs reuse prior answers instead of re-searching the remote.
package reconcile

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/remote"
)

// Store persists reconciliation mappings between runs.
type Store interface {
	CategoryMapping(ctx context.Context, connectionID string, localCategoryID int64) (*database.CategoryMapping, error)
	SaveCategoryMapping(ctx context.Context, m *database.CategoryMapping) error

	AttributeMapping(ctx context.Context, connectionID string, localAttributeID int64) (*database.AttributeMapping, error)
	SaveAttributeMapping(ctx context.Context, m *database.AttributeMapping) error

	AttributeValueMapping(ctx context.Context, connectionID string, localValueID int64, remoteAttributeID int64) (*database.AttributeValueMapping, error)
	SaveAttributeValueMapping(ctx context.Context, m *database.AttributeValueMapping) error
}

// Reconciler resolves one connection's taxonomy against a live remote session.
// Not safe for concurrent use; each sync run builds its own.
type Reconciler struct {
	store   Store
	session remote.Session
	conn    *database.Connection

	// per-run memos, keyed the same way as the store
	categories map[int64]int64
	attributes map[int64]int64
	values     map[valueKey]int64
}

type valueKey struct {
	localValueID      int64
	remoteAttributeID int64
}

func New(store Store, session remote.Session, conn *database.Connection) *Reconciler {
	return &Reconciler{
		store:      store,
		session:    session,
		conn:       conn,
		categories: make(map[int64]int64),
		attributes: make(map[int64]int64),
		values:     make(map[valueKey]int64),
	}
}

// foldName lowercases and strips diacritics so "Boja" matches "boja" and
// "Veličina" matches "Velicina" across instances with different locales.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// findByName searches a remote model for a record whose name matches
// case- and diacritic-insensitively. Returns 0 when nothing matches.
func (r *Reconciler) findByName(ctx context.Context, model, name string) (int64, error) {
	records, err := remote.SearchRead(ctx, r.session, model,
		[]interface{}{[]interface{}{"name", "ilike", name}},
		[]string{"name"}, 0)
	if err != nil {
		return 0, err
	}
	want := foldName(name)
	for _, rec := range records {
		if got, ok := rec["name"].(string); ok && foldName(got) == want {
			return remote.RelationID(rec["id"]), nil
		}
	}
	return 0, nil
}

// Category resolves a local category to a remote product.category id.
// Returns 0 (uncategorized on the remote) when the category cannot be
// resolved and auto-creation is disabled.
func (r *Reconciler) Category(ctx context.Context, localID int64, localName string) (int64, error) {
	if localID == 0 {
		return 0, nil
	}
	if id, ok := r.categories[localID]; ok {
		return id, nil
	}

	mapping, err := r.store.CategoryMapping(ctx, r.conn.ID, localID)
	if err != nil {
		return 0, err
	}
	if mapping != nil && mapping.RemoteCategoryID != 0 {
		r.categories[localID] = mapping.RemoteCategoryID
		return mapping.RemoteCategoryID, nil
	}

	remoteID, err := r.findByName(ctx, "product.category", localName)
	if err != nil {
		return 0, err
	}

	autoCreate := r.conn.AutoCreateCategories
	if mapping != nil {
		autoCreate = mapping.AutoCreate
	}
	if remoteID == 0 && autoCreate {
		remoteID, err = remote.Create(ctx, r.session, "product.category",
			map[string]interface{}{"name": localName})
		if err != nil {
			return 0, err
		}
		log.Info().
			Str("connection_id", r.conn.ID).
			Str("category", localName).
			Int64("remote_id", remoteID).
			Msg("created remote category")
	}

	if remoteID != 0 {
		if err := r.persistCategory(ctx, mapping, localID, localName, remoteID); err != nil {
			return 0, err
		}
		r.categories[localID] = remoteID
	}
	return remoteID, nil
}

func (r *Reconciler) persistCategory(ctx context.Context, existing *database.CategoryMapping, localID int64, localName string, remoteID int64) error {
	m := existing
	if m == nil {
		m = &database.CategoryMapping{
			ConnectionID:      r.conn.ID,
			LocalCategoryID:   localID,
			LocalCategoryName: localName,
			AutoCreate:        r.conn.AutoCreateCategories,
		}
	}
	m.RemoteCategoryID = remoteID
	m.RemoteCategoryName = &localName
	return r.store.SaveCategoryMapping(ctx, m)
}

// Attribute resolves a local attribute to a remote product.attribute id,
// creating the remote attribute when no name match exists. Variants cannot
// sync without their attributes, so creation is not gated.
func (r *Reconciler) Attribute(ctx context.Context, localID int64, localName string) (int64, error) {
	if id, ok := r.attributes[localID]; ok {
		return id, nil
	}

	mapping, err := r.store.AttributeMapping(ctx, r.conn.ID, localID)
	if err != nil {
		return 0, err
	}
	if mapping != nil && mapping.RemoteAttributeID != 0 {
		r.attributes[localID] = mapping.RemoteAttributeID
		return mapping.RemoteAttributeID, nil
	}

	remoteID, err := r.findByName(ctx, "product.attribute", localName)
	if err != nil {
		return 0, err
	}
	if remoteID == 0 {
		remoteID, err = remote.Create(ctx, r.session, "product.attribute",
			map[string]interface{}{"name": localName, "create_variant": "always"})
		if err != nil {
			return 0, err
		}
		log.Info().
			Str("connection_id", r.conn.ID).
			Str("attribute", localName).
			Int64("remote_id", remoteID).
			Msg("created remote attribute")
	}

	m := mapping
	if m == nil {
		m = &database.AttributeMapping{
			ConnectionID:       r.conn.ID,
			LocalAttributeID:   localID,
			LocalAttributeName: localName,
		}
	}
	m.RemoteAttributeID = remoteID
	m.RemoteAttributeName = &localName
	if err := r.store.SaveAttributeMapping(ctx, m); err != nil {
		return 0, err
	}
	r.attributes[localID] = remoteID
	return remoteID, nil
}

// Value resolves a local attribute value to a remote product.attribute.value
// id inside the given remote attribute. Name matching is scoped to the
// attribute since different attributes reuse value names freely.
func (r *Reconciler) Value(ctx context.Context, localID int64, localName string, remoteAttributeID int64) (int64, error) {
	key := valueKey{localValueID: localID, remoteAttributeID: remoteAttributeID}
	if id, ok := r.values[key]; ok {
		return id, nil
	}

	mapping, err := r.store.AttributeValueMapping(ctx, r.conn.ID, localID, remoteAttributeID)
	if err != nil {
		return 0, err
	}
	if mapping != nil && mapping.RemoteValueID != 0 {
		r.values[key] = mapping.RemoteValueID
		return mapping.RemoteValueID, nil
	}

	records, err := remote.SearchRead(ctx, r.session, "product.attribute.value",
		[]interface{}{
			[]interface{}{"attribute_id", "=", remoteAttributeID},
			[]interface{}{"name", "ilike", localName},
		},
		[]string{"name"}, 0)
	if err != nil {
		return 0, err
	}
	var remoteID int64
	want := foldName(localName)
	for _, rec := range records {
		if got, ok := rec["name"].(string); ok && foldName(got) == want {
			remoteID = remote.RelationID(rec["id"])
			break
		}
	}

	if remoteID == 0 {
		remoteID, err = remote.Create(ctx, r.session, "product.attribute.value",
			map[string]interface{}{"name": localName, "attribute_id": remoteAttributeID})
		if err != nil {
			return 0, err
		}
	}

	m := mapping
	if m == nil {
		m = &database.AttributeValueMapping{
			ConnectionID:      r.conn.ID,
			LocalValueID:      localID,
			LocalValueName:    localName,
			RemoteAttributeID: remoteAttributeID,
		}
	}
	m.RemoteValueID = remoteID
	m.RemoteValueName = &localName
	if err := r.store.SaveAttributeValueMapping(ctx, m); err != nil {
		return 0, err
	}
	r.values[key] = remoteID
	return remoteID, nil
}
