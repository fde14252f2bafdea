package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/fieldmap"
)

// FieldMappingRequest is the write model for a field mapping row.
type FieldMappingRequest struct {
	SourceField       string  `json:"sourceField" binding:"required" jsonschema:"required"`
	TargetField       string  `json:"targetField" binding:"required" jsonschema:"required"`
	SyncMode          string  `json:"syncMode" jsonschema:"enum=always,enum=create_only,enum=if_empty,enum=manual"`
	DefaultValue      *string `json:"defaultValue"`
	DefaultValueApply string  `json:"defaultValueApply" jsonschema:"enum=never,enum=if_source_empty,enum=always"`
	ApplyCoefficient  bool    `json:"applyCoefficient"`
	Coefficient       float64 `json:"coefficient"`
	IsActive          *bool   `json:"isActive"`
	Sequence          int     `json:"sequence"`
}

func (r *FieldMappingRequest) apply(m *database.FieldMapping) {
	m.SourceField = r.SourceField
	m.TargetField = r.TargetField
	m.SyncMode = r.SyncMode
	m.DefaultValue = r.DefaultValue
	m.DefaultValueApply = r.DefaultValueApply
	m.ApplyCoefficient = r.ApplyCoefficient
	m.Coefficient = r.Coefficient
	if r.IsActive != nil {
		m.IsActive = *r.IsActive
	} else {
		m.IsActive = true
	}
	m.Sequence = r.Sequence
}

func (r *FieldMappingRequest) validate() error {
	if r.SourceField != database.SourceFieldNone && !fieldmap.KnownSourceField(r.SourceField) {
		return fmt.Errorf("unknown source field %q", r.SourceField)
	}
	if !fieldmap.KnownTargetField(r.TargetField) {
		return fmt.Errorf("unknown target field %q", r.TargetField)
	}
	switch r.SyncMode {
	case "", database.SyncModeAlways, database.SyncModeCreateOnly, database.SyncModeIfEmpty, database.SyncModeManual:
	default:
		return fmt.Errorf("unknown sync mode %q", r.SyncMode)
	}
	switch r.DefaultValueApply {
	case "", database.DefaultApplyNever, database.DefaultApplyIfSourceEmpty, database.DefaultApplyAlways:
	default:
		return fmt.Errorf("unknown default value mode %q", r.DefaultValueApply)
	}
	if r.SourceField == database.SourceFieldNone && (r.DefaultValue == nil || *r.DefaultValue == "") {
		return fmt.Errorf("source field %s requires a default value", database.SourceFieldNone)
	}
	return nil
}

// ListFieldMappings returns the field mappings of a connection in sequence order.
func ListFieldMappings(c *gin.Context) {
	repo := database.NewMappingRepo(database.Pool())
	mappings, err := repo.FieldMappings(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings, "total": len(mappings)})
}

// CreateFieldMapping adds a field mapping to a connection.
func CreateFieldMapping(c *gin.Context) {
	var req FieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := &database.FieldMapping{ConnectionID: c.Param("id")}
	req.apply(m)

	repo := database.NewMappingRepo(database.Pool())
	if err := repo.CreateFieldMapping(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdateFieldMapping rewrites a field mapping.
func UpdateFieldMapping(c *gin.Context) {
	var req FieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo := database.NewMappingRepo(database.Pool())
	m, err := repo.GetFieldMapping(c.Request.Context(), c.Param("mappingId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "field mapping not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	req.apply(m)
	if err := repo.UpdateFieldMapping(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteFieldMapping removes a field mapping.
func DeleteFieldMapping(c *gin.Context) {
	repo := database.NewMappingRepo(database.Pool())
	err := repo.DeleteFieldMapping(c.Request.Context(), c.Param("mappingId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "field mapping not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// InstallDefaultMappings seeds the standard mapping set, skipping target
// fields the connection already maps.
func InstallDefaultMappings(c *gin.Context) {
	repo := database.NewMappingRepo(database.Pool())
	added, err := repo.InstallDefaults(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// ListCategoryMappings returns the learned category resolutions of a connection.
func ListCategoryMappings(c *gin.Context) {
	repo := database.NewMappingRepo(database.Pool())
	mappings, err := repo.CategoryMappings(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings, "total": len(mappings)})
}

// CategoryMappingRequest pins a local category to a remote one.
type CategoryMappingRequest struct {
	LocalCategoryID   int64  `json:"localCategoryId" binding:"required" jsonschema:"required,minimum=1"`
	LocalCategoryName string `json:"localCategoryName"`
	RemoteCategoryID  int64  `json:"remoteCategoryId" jsonschema:"minimum=0"`
	AutoCreate        bool   `json:"autoCreate"`
}

// SaveCategoryMapping upserts a manual category mapping.
func SaveCategoryMapping(c *gin.Context) {
	var req CategoryMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := &database.CategoryMapping{
		ConnectionID:      c.Param("id"),
		LocalCategoryID:   req.LocalCategoryID,
		LocalCategoryName: req.LocalCategoryName,
		RemoteCategoryID:  req.RemoteCategoryID,
		AutoCreate:        req.AutoCreate,
	}

	repo := database.NewMappingRepo(database.Pool())
	if err := repo.SaveCategoryMapping(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}
