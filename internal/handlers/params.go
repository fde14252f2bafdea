package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// queryInt reads an integer query parameter, returning 0 when absent or invalid.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
