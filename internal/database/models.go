package database

import (
	"time"
)

// Connection status values
const (
	ConnStatusNotTested = "not_tested"
	ConnStatusOK        = "ok"
	ConnStatusError     = "error"
)

// Reference generation modes
const (
	RefModeKeepOriginal = "keep_original"
	RefModeSupplierRef  = "supplier_ref"
	RefModeProductID    = "product_id"
	RefModeCustomFormat = "custom_format"
	RefModeNone         = "none"
)

// Supplier-info price sources
const (
	PriceSourceListPrice     = "list_price"
	PriceSourceStandardPrice = "standard_price"
	PriceSourcePricelist     = "pricelist"
)

// Connection configures sync towards one remote instance for one supplier client.
// Field mappings, category/attribute mappings, previews and history are owned
// by the connection and cascade-deleted with it.
type Connection struct {
	ID               string `json:"id"`               // CUID-like
	SupplierClientID int64  `json:"supplierClientId"` // FK to catalog_clients.id
	Name             string `json:"name"`

	// Connection settings
	RemoteURL      string `json:"remoteUrl"`      // e.g. https://customer.example.com
	Database       string `json:"database"`       // remote database/tenant name
	APIKey         string `json:"-"`              // never serialized
	Username       string `json:"username"`       // optional, falls back to apiuser
	VerifySSL      bool   `json:"verifySsl"`      // disable for self-signed dev endpoints
	TimeoutSeconds int    `json:"timeoutSeconds"` // per-request timeout

	// Status
	IsActive         bool       `json:"isActive"`
	ConnectionStatus string     `json:"connectionStatus"` // not_tested | ok | error
	ConnectionError  *string    `json:"connectionError"`
	LastTestAt       *time.Time `json:"lastTestAt"`
	LastSyncAt       *time.Time `json:"lastSyncAt"`

	// Sync options
	SyncVariants         bool `json:"syncVariants"`
	AutoCreateCategories bool `json:"autoCreateCategories"`
	IncludeImages        bool `json:"includeImages"`
	PreserveRemoteImages bool `json:"preserveRemoteImages"` // keep images the customer modified

	// Reference generation policy
	ReferenceMode         string `json:"referenceMode"` // keep_original | supplier_ref | product_id | custom_format | none
	ReferencePrefix       string `json:"referencePrefix"`
	ReferenceSuffix       string `json:"referenceSuffix"`
	ReferenceSeparator    string `json:"referenceSeparator"`
	ReferenceCustomFormat string `json:"referenceCustomFormat"` // placeholders: {prefix} {ref} {id} {suffix} {separator}

	// Supplier-info policy (invoice matching on the remote side)
	CreateSupplierInfo     bool    `json:"createSupplierInfo"`
	SupplierPartnerID      int64   `json:"supplierPartnerId"`      // our partner id in the remote instance
	SupplierPartnerName    *string `json:"supplierPartnerName"`    // fetched from the remote
	SupplierInfoPriceField string  `json:"supplierInfoPriceField"` // list_price | standard_price | pricelist
	SupplierInfoPriceCoeff float64 `json:"supplierInfoPriceCoeff"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Field mapping sync modes
const (
	SyncModeCreateOnly = "create_only"
	SyncModeAlways     = "always"
	SyncModeIfEmpty    = "if_empty"
	SyncModeManual     = "manual"
)

// Default-value apply policies
const (
	DefaultApplyNever         = "never"
	DefaultApplyIfSourceEmpty = "if_source_empty"
	DefaultApplyAlways        = "always"
)

// SourceFieldNone is the sentinel for target-only mappings (default value only).
const SourceFieldNone = "_none"

// FieldMapping is one ordered rule translating a local product attribute into
// a remote record field. target_field is unique per connection.
type FieldMapping struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`
	Sequence     int    `json:"sequence"`

	SourceField string `json:"sourceField"` // local attribute name or _none
	TargetField string `json:"targetField"` // remote field name
	SyncMode    string `json:"syncMode"`    // create_only | always | if_empty | manual

	DefaultValue      *string `json:"defaultValue"`      // stored as text, typed per target field
	DefaultValueApply string  `json:"defaultValueApply"` // never | if_source_empty | always

	ApplyCoefficient bool    `json:"applyCoefficient"`
	Coefficient      float64 `json:"coefficient"`

	IsActive bool `json:"isActive"`
}

// CategoryMapping memoizes (connection, local category) -> remote category.
type CategoryMapping struct {
	ID                 string    `json:"id"`
	ConnectionID       string    `json:"connectionId"`
	LocalCategoryID    int64     `json:"localCategoryId"`
	LocalCategoryName  string    `json:"localCategoryName"`
	RemoteCategoryID   int64     `json:"remoteCategoryId"` // 0 when not resolved yet
	RemoteCategoryName *string   `json:"remoteCategoryName"`
	AutoCreate         bool      `json:"autoCreate"`
	CreatedAt          time.Time `json:"createdAt"`
}

// AttributeMapping memoizes (connection, local attribute) -> remote attribute.
type AttributeMapping struct {
	ID                  string    `json:"id"`
	ConnectionID        string    `json:"connectionId"`
	LocalAttributeID    int64     `json:"localAttributeId"`
	LocalAttributeName  string    `json:"localAttributeName"`
	RemoteAttributeID   int64     `json:"remoteAttributeId"`
	RemoteAttributeName *string   `json:"remoteAttributeName"`
	CreatedAt           time.Time `json:"createdAt"`
}

// AttributeValueMapping memoizes (connection, local value) -> remote value,
// scoped to a remote attribute because value names may collide across attributes.
type AttributeValueMapping struct {
	ID                string    `json:"id"`
	ConnectionID      string    `json:"connectionId"`
	LocalValueID      int64     `json:"localValueId"`
	LocalValueName    string    `json:"localValueName"`
	RemoteAttributeID int64     `json:"remoteAttributeId"`
	RemoteValueID     int64     `json:"remoteValueId"`
	RemoteValueName   *string   `json:"remoteValueName"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Preview lifecycle states
const (
	PreviewStateDraft     = "draft"
	PreviewStateAnalyzing = "analyzing"
	PreviewStateReady     = "ready"
	PreviewStateExecuting = "executing"
	PreviewStateDone      = "done"
	PreviewStateCancelled = "cancelled"
)

// SyncPreview is one review cycle for a connection. Progress columns are the
// shared-mutable surface between the background worker and status pollers;
// every mutation is committed immediately.
type SyncPreview struct {
	ID           string  `json:"id"`
	ConnectionID string  `json:"connectionId"`
	ProductIDs   []int64 `json:"productIds"`
	State        string  `json:"state"` // draft | analyzing | ready | executing | done | cancelled

	SyncCurrent  int     `json:"syncCurrent"`
	SyncTotal    int     `json:"syncTotal"`
	SyncProgress int     `json:"syncProgress"` // percent
	SyncMessage  string  `json:"syncMessage"`
	ErrorMessage *string `json:"errorMessage"`
	HistoryID    *string `json:"historyId"`

	TriggeredBy string    `json:"triggeredBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Change classifications
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeSkip   = "skip"
)

// SyncChange is one product's classification plus its field/variant diff.
// field_changes and variant_changes are JSONB at the storage boundary; the
// in-memory representation is the typed diff values in internal/preview.
type SyncChange struct {
	ID        string `json:"id"`
	PreviewID string `json:"previewId"`
	Sequence  int    `json:"sequence"` // position in the analyzed batch

	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	ProductRef  string `json:"productRef"`

	ChangeType      string `json:"changeType"`      // create | update | skip
	RemoteProductID int64  `json:"remoteProductId"` // 0 when classifying create

	FieldChanges   []byte `json:"-"` // JSONB {"field": {"old": .., "new": ..}}
	VariantChanges []byte `json:"-"` // JSONB array of variant diffs

	HasWarning     bool    `json:"hasWarning"`
	WarningMessage *string `json:"warningMessage"`
	IsExcluded     bool    `json:"isExcluded"`
}

// History statuses
const (
	HistoryStatusSuccess = "success"
	HistoryStatusPartial = "partial"
	HistoryStatusError   = "error"
)

// SyncHistory is the immutable record of one executed run.
type SyncHistory struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`

	ProductsCreated int `json:"productsCreated"`
	ProductsUpdated int `json:"productsUpdated"`
	ProductsSkipped int `json:"productsSkipped"`
	ProductsErrored int `json:"productsErrored"`

	Status      string    `json:"status"` // success | partial | error
	ErrorLog    *string   `json:"errorLog"`
	Details     []byte    `json:"-"` // JSONB: product names + per-product error strings
	DurationMS  int64     `json:"durationMs"`
	TriggeredBy string    `json:"triggeredBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TotalProducts is the sum of all per-product counters.
func (h *SyncHistory) TotalProducts() int {
	return h.ProductsCreated + h.ProductsUpdated + h.ProductsSkipped + h.ProductsErrored
}

// ExportField defines one column available for catalog export.
type ExportField struct {
	ID            string `json:"id"`
	Name          string `json:"name"`          // display label
	TechnicalName string `json:"technicalName"` // unique, e.g. default_code
	Header        string `json:"header"`        // CSV/XLSX column header, defaults to Name
	Sequence      int    `json:"sequence"`
	Enabled       bool   `json:"enabled"`
}

// ExportHeader returns the column header to use in export files.
func (f *ExportField) ExportHeader() string {
	if f.Header != "" {
		return f.Header
	}
	return f.Name
}
