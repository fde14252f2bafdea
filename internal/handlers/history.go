package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supplyline/catalog-service/internal/database"
)

// ListHistory returns past sync runs for a connection, newest first.
func ListHistory(c *gin.Context) {
	repo := database.NewHistoryRepo(database.Pool())
	entries, err := repo.ListByConnection(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "total": len(entries)})
}

// HistoryDetailResponse is one run with its per-product details decoded.
type HistoryDetailResponse struct {
	*database.SyncHistory
	Details []json.RawMessage `json:"details"`
}

// GetHistory returns one sync run including per-product outcomes.
func GetHistory(c *gin.Context) {
	repo := database.NewHistoryRepo(database.Pool())
	entry, err := repo.Get(c.Request.Context(), c.Param("historyId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "history entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := HistoryDetailResponse{SyncHistory: entry}
	if len(entry.Details) > 0 {
		// details are written by the executor, a decode failure means corruption
		if err := json.Unmarshal(entry.Details, &resp.Details); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
