package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Liveness confirms the process can serve HTTP.
func Liveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}
