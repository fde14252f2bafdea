package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/taskqueue"
)

// CreatePreviewRequest selects the products to analyze.
type CreatePreviewRequest struct {
	ProductIDs []int64 `json:"productIds" binding:"required" jsonschema:"required,minItems=1"`
}

// CreatePreview stores a draft preview and schedules the analysis task.
func CreatePreview(c *gin.Context) {
	var req CreatePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ProductIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productIds must not be empty"})
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
	if !conn.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "connection is inactive"})
		return
	}

	preview := &database.SyncPreview{
		ConnectionID: conn.ID,
		ProductIDs:   req.ProductIDs,
		SyncTotal:    len(req.ProductIDs),
		TriggeredBy:  "api",
	}
	previewRepo := database.NewPreviewRepo(database.Pool())
	if err := previewRepo.Create(ctx, preview); err != nil {
		if errors.Is(err, database.ErrActivePreview) {
			c.JSON(http.StatusConflict, gin.H{"error": "connection already has an active preview"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	queue := taskqueue.New(database.Pool())
	taskID, err := queue.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
		TaskType: taskqueue.TaskTypeAnalyze,
		Payload:  taskqueue.AnalyzePayload{PreviewID: preview.ID},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"preview": preview, "taskId": taskID})
}

// ListPreviews returns the recent previews of a connection.
func ListPreviews(c *gin.Context) {
	repo := database.NewPreviewRepo(database.Pool())
	previews, err := repo.ListByConnection(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"previews": previews, "total": len(previews)})
}

// PreviewStatusResponse is the polling shape for the preview lifecycle.
type PreviewStatusResponse struct {
	ID           string  `json:"id" jsonschema:"required"`
	State        string  `json:"state" jsonschema:"required,enum=draft,enum=analyzing,enum=ready,enum=executing,enum=done,enum=cancelled"`
	Progress     int     `json:"progress"`
	Current      int     `json:"current"`
	Total        int     `json:"total"`
	Message      string  `json:"message"`
	ErrorMessage *string `json:"errorMessage"`
	HistoryID    *string `json:"historyId"`
}

// GetPreviewStatus returns the live state and progress of a preview.
func GetPreviewStatus(c *gin.Context) {
	repo := database.NewPreviewRepo(database.Pool())
	preview, err := repo.Get(c.Request.Context(), c.Param("previewId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, PreviewStatusResponse{
		ID:           preview.ID,
		State:        preview.State,
		Progress:     preview.SyncProgress,
		Current:      preview.SyncCurrent,
		Total:        preview.SyncTotal,
		Message:      preview.SyncMessage,
		ErrorMessage: preview.ErrorMessage,
		HistoryID:    preview.HistoryID,
	})
}

// ListPreviewChanges returns the per-product diff rows of a preview.
func ListPreviewChanges(c *gin.Context) {
	repo := database.NewPreviewRepo(database.Pool())
	if _, err := repo.Get(c.Request.Context(), c.Param("previewId")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	changes, err := repo.Changes(c.Request.Context(), c.Param("previewId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes, "total": len(changes)})
}

// ExecutePreviewRequest carries execution options.
type ExecutePreviewRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

// ExecutePreview schedules the execution task for a ready preview.
func ExecutePreview(c *gin.Context) {
	var req ExecutePreviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	ctx := c.Request.Context()
	repo := database.NewPreviewRepo(database.Pool())
	preview, err := repo.Get(ctx, c.Param("previewId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if preview.State != database.PreviewStateReady {
		c.JSON(http.StatusConflict, gin.H{"error": "preview is not ready for execution", "state": preview.State})
		return
	}

	queue := taskqueue.New(database.Pool())
	taskID, err := queue.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
		TaskType: taskqueue.TaskTypeExecute,
		Payload:  taskqueue.ExecutePayload{PreviewID: preview.ID, TriggeredBy: req.TriggeredBy},
		Priority: 10,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"previewId": preview.ID, "taskId": taskID})
}

// CancelPreview requests a running execution to stop after the current product.
func CancelPreview(c *gin.Context) {
	repo := database.NewPreviewRepo(database.Pool())
	err := repo.Cancel(c.Request.Context(), c.Param("previewId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	if errors.Is(err, database.ErrStateConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "preview is not executing"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// ExcludeChangeRequest toggles a change row in or out of execution.
type ExcludeChangeRequest struct {
	Excluded *bool `json:"excluded" binding:"required" jsonschema:"required"`
}

// SetChangeExcluded toggles one change row; only valid while the preview is ready.
func SetChangeExcluded(c *gin.Context) {
	var req ExcludeChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo := database.NewPreviewRepo(database.Pool())
	err := repo.SetExcluded(c.Request.Context(), c.Param("changeId"), *req.Excluded)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "change not found or preview is not ready"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"excluded": *req.Excluded})
}
