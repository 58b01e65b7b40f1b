package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The capture endpoint is hit straight from browsers, so every route is CORS
// open. Credentials are carried in the body or query string, never cookies.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}
