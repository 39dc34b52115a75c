package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/pool"
)

// PoolStats reports in-flight, queued and peak counts per resource class.
func PoolStats(p *pool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"classes": p.Snapshot()})
	}
}
