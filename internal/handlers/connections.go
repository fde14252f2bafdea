package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/remote"
)

// ConnectionRequest is the write model for creating or updating a connection.
type ConnectionRequest struct {
	SupplierClientID int64  `json:"supplierClientId" binding:"required" jsonschema:"required,minimum=1"`
	Name             string `json:"name" binding:"required" jsonschema:"required"`

	RemoteURL      string `json:"remoteUrl" binding:"required" jsonschema:"required"`
	Database       string `json:"database" binding:"required" jsonschema:"required"`
	APIKey         string `json:"apiKey"`
	Username       string `json:"username"`
	VerifySSL      *bool  `json:"verifySsl"`
	TimeoutSeconds int    `json:"timeoutSeconds" jsonschema:"minimum=0,maximum=600"`

	IsActive             *bool `json:"isActive"`
	SyncVariants         bool  `json:"syncVariants"`
	AutoCreateCategories bool  `json:"autoCreateCategories"`
	IncludeImages        bool  `json:"includeImages"`
	PreserveRemoteImages bool  `json:"preserveRemoteImages"`

	ReferenceMode         string `json:"referenceMode" jsonschema:"enum=keep_original,enum=supplier_ref,enum=product_id,enum=custom_format,enum=none"`
	ReferencePrefix       string `json:"referencePrefix"`
	ReferenceSuffix       string `json:"referenceSuffix"`
	ReferenceSeparator    string `json:"referenceSeparator"`
	ReferenceCustomFormat string `json:"referenceCustomFormat"`

	CreateSupplierInfo     bool    `json:"createSupplierInfo"`
	SupplierPartnerID      int64   `json:"supplierPartnerId"`
	SupplierInfoPriceField string  `json:"supplierInfoPriceField" jsonschema:"enum=list_price,enum=standard_price,enum=pricelist"`
	SupplierInfoPriceCoeff float64 `json:"supplierInfoPriceCoeff"`
}

func (r *ConnectionRequest) apply(c *database.Connection) {
	c.SupplierClientID = r.SupplierClientID
	c.Name = r.Name
	c.RemoteURL = r.RemoteURL
	c.Database = r.Database
	if r.APIKey != "" {
		c.APIKey = r.APIKey
	}
	c.Username = r.Username
	if r.VerifySSL != nil {
		c.VerifySSL = *r.VerifySSL
	} else {
		c.VerifySSL = true
	}
	c.TimeoutSeconds = r.TimeoutSeconds
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	} else {
		c.IsActive = true
	}
	c.SyncVariants = r.SyncVariants
	c.AutoCreateCategories = r.AutoCreateCategories
	c.IncludeImages = r.IncludeImages
	c.PreserveRemoteImages = r.PreserveRemoteImages
	c.ReferenceMode = r.ReferenceMode
	c.ReferencePrefix = r.ReferencePrefix
	c.ReferenceSuffix = r.ReferenceSuffix
	c.ReferenceSeparator = r.ReferenceSeparator
	c.ReferenceCustomFormat = r.ReferenceCustomFormat
	c.CreateSupplierInfo = r.CreateSupplierInfo
	c.SupplierPartnerID = r.SupplierPartnerID
	c.SupplierInfoPriceField = r.SupplierInfoPriceField
	c.SupplierInfoPriceCoeff = r.SupplierInfoPriceCoeff
}

// ListConnections returns all configured connections.
func ListConnections(c *gin.Context) {
	repo := database.NewConnectionRepo(database.Pool())
	conns, err := repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns, "total": len(conns)})
}

// CreateConnection stores a new connection in not_tested status.
func CreateConnection(c *gin.Context) {
	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn := &database.Connection{}
	req.apply(conn)

	repo := database.NewConnectionRepo(database.Pool())
	if err := repo.Create(c.Request.Context(), conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conn)
}

// GetConnection returns one connection.
func GetConnection(c *gin.Context) {
	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conn)
}

// UpdateConnection rewrites a connection's settings. An empty apiKey keeps
// the stored secret.
func UpdateConnection(c *gin.Context) {
	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stored := conn.APIKey
	req.apply(conn)
	if req.APIKey == "" {
		conn.APIKey = stored
	}

	if err := repo.Update(c.Request.Context(), conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conn)
}

// DeleteConnection removes a connection and everything hanging off it.
func DeleteConnection(c *gin.Context) {
	repo := database.NewConnectionRepo(database.Pool())
	err := repo.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// TestConnectionResponse mirrors the stored test outcome.
type TestConnectionResponse struct {
	Status   string    `json:"status" jsonschema:"required,enum=ok,enum=error"`
	Error    string    `json:"error,omitempty"`
	TestedAt time.Time `json:"testedAt" jsonschema:"required"`
}

// TestConnection probes the remote with the stored credentials and records
// the outcome on the connection.
func TestConnection(c *gin.Context) {
	ctx := c.Request.Context()
	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var result remote.TestResult
	client, err := dial(conn)
	if err != nil {
		result = remote.TestResult{Status: database.ConnStatusError, Error: err.Error(), TestedAt: time.Now().UTC()}
	} else {
		defer client.Close()
		result = client.TestConnection(ctx)
	}

	var testErr *string
	if result.Error != "" {
		testErr = &result.Error
	}
	if err := repo.SetTestResult(ctx, conn.ID, result.Status, testErr, result.TestedAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, TestConnectionResponse{
		Status:   result.Status,
		Error:    result.Error,
		TestedAt: result.TestedAt,
	})
}

// RemoteCategory is one category on the remote instance.
type RemoteCategory struct {
	ID   int64  `json:"id" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required"`
}

// ListRemoteCategories lists product categories on the remote, for manual
// category mapping in the UI.
func ListRemoteCategories(c *gin.Context) {
	ctx := c.Request.Context()
	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client, session, err := dialSession(ctx, conn)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer client.Close()

	records, err := remote.SearchRead(ctx, session, "product.category",
		[]interface{}{}, []string{"complete_name"}, 0)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	categories := make([]RemoteCategory, 0, len(records))
	for _, rec := range records {
		name, _ := rec["complete_name"].(string)
		categories = append(categories, RemoteCategory{
			ID:   remote.RelationID(rec["id"]),
			Name: name,
		})
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "total": len(categories)})
}

// RemotePartner is one res.partner candidate on the remote instance.
type RemotePartner struct {
	ID   int64  `json:"id" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required"`
}

// SearchRemotePartners finds supplier partner candidates, by VAT number when
// given and by name otherwise.
func SearchRemotePartners(c *gin.Context) {
	name := c.Query("name")
	vat := c.Query("vat")
	if name == "" && vat == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name or vat query parameter is required"})
		return
	}

	ctx := c.Request.Context()
	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client, session, err := dialSession(ctx, conn)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer client.Close()

	var records []map[string]interface{}
	if vat != "" {
		records, err = remote.SearchRead(ctx, session, "res.partner",
			[]interface{}{
				[]interface{}{"vat", "=", vat},
				[]interface{}{"is_company", "=", true},
			},
			[]string{"name"}, 20)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}
	if len(records) == 0 && name != "" {
		records, err = remote.SearchRead(ctx, session, "res.partner",
			[]interface{}{
				[]interface{}{"name", "ilike", name},
				[]interface{}{"is_company", "=", true},
			},
			[]string{"name"}, 20)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}

	partners := make([]RemotePartner, 0, len(records))
	for _, rec := range records {
		pname, _ := rec["name"].(string)
		partners = append(partners, RemotePartner{ID: remote.RelationID(rec["id"]), Name: pname})
	}
	c.JSON(http.StatusOK, gin.H{"partners": partners, "total": len(partners)})
}

// CreatePartnerRequest creates our company as a supplier partner remotely.
type CreatePartnerRequest struct {
	Name string `json:"name" binding:"required" jsonschema:"required"`
}

// CreateRemotePartner creates the supplier partner on the remote and binds
// it to the connection.
func CreateRemotePartner(c *gin.Context) {
	var req CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	repo := database.NewConnectionRepo(database.Pool())
	conn, err := repo.Get(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client, session, err := dialSession(ctx, conn)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer client.Close()

	partnerID, err := remote.Create(ctx, session, "res.partner", map[string]interface{}{
		"name":          req.Name,
		"is_company":    true,
		"supplier_rank": 1,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	conn.SupplierPartnerID = partnerID
	if err := repo.Update(ctx, conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := repo.SetPartnerName(ctx, conn.ID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, RemotePartner{ID: partnerID, Name: req.Name})
}
