package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

// Timeout bounds the request context. Handlers run on the request
// goroutine and are expected to honour ctx; if the deadline passed and
// nothing was written, a 504 is returned.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			httputil.AbortWithError(c, errors.Timeout(ctx.Err()))
		}
	}
}
