package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

// DefaultMaxBodySize comfortably fits a booking request.
const DefaultMaxBodySize = 64 << 10

// SizeLimit rejects bodies over maxBytes and caps reads for requests
// that do not declare a length.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.AbortWithError(c, &errors.AppError{
				Code:    errors.ErrBadRequest,
				Message: fmt.Sprintf("request body exceeds %d bytes", maxBytes),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
