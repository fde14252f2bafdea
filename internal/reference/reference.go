// Package reference derives identifiers for products synced to a remote
// instance: the deterministic external identifier proving ownership of a
// remote record, and the human-facing reference written to the remote
// reference field per the connection's policy.
package reference

import (
	"strconv"
	"strings"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

// ExternalID is the deterministic fallback key for a product within a
// supplier client. It is the sole basis for recognizing "this is our record"
// on the remote side.
func ExternalID(clientID, productID int64) string {
	return "supplier_" + strconv.FormatInt(clientID, 10) + "_product_" + strconv.FormatInt(productID, 10)
}

// VariantExternalID is the variant-scoped equivalent of ExternalID.
func VariantExternalID(clientID, variantID int64) string {
	return "supplier_" + strconv.FormatInt(clientID, 10) + "_variant_" + strconv.FormatInt(variantID, 10)
}

// Generate produces the human-facing reference for a product per the
// connection's reference policy. It returns "" in none mode; the executor
// then falls back to the external identifier so the record stays findable.
func Generate(conn *database.Connection, product *catalog.Product) string {
	switch conn.ReferenceMode {
	case database.RefModeNone:
		return ""

	case database.RefModeCustomFormat:
		if conn.ReferenceCustomFormat != "" {
			// The format string fully controls the output: no prefix/suffix
			// wrapping is applied around it.
			r := strings.NewReplacer(
				"{prefix}", conn.ReferencePrefix,
				"{ref}", product.DefaultCode,
				"{id}", strconv.FormatInt(product.ID, 10),
				"{suffix}", conn.ReferenceSuffix,
				"{separator}", conn.ReferenceSeparator,
			)
			return r.Replace(conn.ReferenceCustomFormat)
		}
		return wrap(conn, product.DefaultCode)

	case database.RefModeProductID:
		return wrap(conn, strconv.FormatInt(product.ID, 10))

	case database.RefModeKeepOriginal, database.RefModeSupplierRef:
		return wrap(conn, product.DefaultCode)

	default:
		return wrap(conn, product.DefaultCode)
	}
}

// wrap joins prefix, base and suffix with the connection separator. Empty
// parts are dropped so no separator is emitted around an absent prefix or
// suffix.
func wrap(conn *database.Connection, base string) string {
	var parts []string
	if conn.ReferencePrefix != "" {
		parts = append(parts, conn.ReferencePrefix)
	}
	if base != "" {
		parts = append(parts, base)
	}
	if conn.ReferenceSuffix != "" {
		parts = append(parts, conn.ReferenceSuffix)
	}
	return strings.Join(parts, conn.ReferenceSeparator)
}

// MatchKeys returns the identifier values the diff generator searches the
// remote reference field for: the external identifier always (covers records
// created in none mode), plus the generated human reference when one exists.
// The first remote match wins.
func MatchKeys(conn *database.Connection, product *catalog.Product) []string {
	keys := []string{ExternalID(conn.SupplierClientID, product.ID)}
	if ref := Generate(conn, product); ref != "" && ref != keys[0] {
		keys = append(keys, ref)
	}
	return keys
}
