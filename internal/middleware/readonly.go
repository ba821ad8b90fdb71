package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/pkg/apperrors"
)

// ReadOnlyMiddleware blocks every mutating verb while the gateway is in
// read-only mode. Market data and health stay reachable.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
		}
	}
}
