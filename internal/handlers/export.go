package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/export"
)

// ListExportFields returns all export columns with their settings.
func ListExportFields(c *gin.Context) {
	repo := database.NewExportFieldRepo(database.Pool())
	if _, err := repo.InstallDefaults(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	fields, err := repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields, "total": len(fields)})
}

// ExportFieldRequest is the write model for one export column.
type ExportFieldRequest struct {
	Name          string `json:"name" binding:"required" jsonschema:"required"`
	TechnicalName string `json:"technicalName" binding:"required" jsonschema:"required"`
	Header        string `json:"header"`
	Sequence      int    `json:"sequence"`
	Enabled       bool   `json:"enabled"`
}

// UpsertExportField creates or rewrites an export column by technical name.
func UpsertExportField(c *gin.Context) {
	var req ExportFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	field := &database.ExportField{
		Name:          req.Name,
		TechnicalName: req.TechnicalName,
		Header:        req.Header,
		Sequence:      req.Sequence,
		Enabled:       req.Enabled,
	}
	repo := database.NewExportFieldRepo(database.Pool())
	if err := repo.Upsert(c.Request.Context(), field); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, field)
}

// ExportCatalog streams the client's selected catalog as CSV or XLSX.
// The format query parameter defaults to csv.
func ExportCatalog(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	ctx := c.Request.Context()
	connRepo := database.NewConnectionRepo(database.Pool())
	conn, err := connRepo.Get(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	store := catalog.NewPGStore(database.Pool())
	ids, err := store.SelectedProductIDs(ctx, conn.SupplierClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	products, err := store.Products(ctx, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fieldRepo := database.NewExportFieldRepo(database.Pool())
	if _, err := fieldRepo.InstallDefaults(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	fields, err := fieldRepo.Enabled(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(fields) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no export fields are enabled"})
		return
	}

	filename := fmt.Sprintf("catalog-%d-%s.%s", conn.SupplierClientID, time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	switch format {
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(c.Writer, fields, products)
	default:
		c.Header("Content-Type", "text/csv; charset=utf-8")
		err = export.WriteCSV(c.Writer, fields, products)
	}
	if err != nil {
		// headers are already sent, the truncated body is the best signal left
		c.Abort()
	}
}
