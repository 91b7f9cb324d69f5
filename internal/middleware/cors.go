package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Authorization, Content-Type, Accept, Idempotency-Key, " + HeaderXRequestID
	corsExpose  = HeaderXRequestID + ", X-API-Version"
)

type CORSConfig struct {
	// AllowOrigins lists exact origins; "*" allows any.
	AllowOrigins     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowOrigins: []string{"*"}, MaxAge: 12 * time.Hour}
}

// allowedOrigin returns the value for Access-Control-Allow-Origin, or
// false when origin is not on the list. Credentialed responses never
// carry "*".
func (c CORSConfig) allowedOrigin(origin string) (string, bool) {
	for _, o := range c.AllowOrigins {
		switch {
		case o == origin:
			return origin, true
		case o == "*" && c.AllowCredentials:
			return origin, true
		case o == "*":
			return "*", true
		}
	}
	return "", false
}

// CORS answers cross-origin requests from configured origins. Requests
// from other origins get no CORS headers and preflights from them are
// refused.
func CORS(config CORSConfig) gin.HandlerFunc {
	maxAge := strconv.Itoa(int(config.MaxAge / time.Second))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		c.Writer.Header().Add("Vary", "Origin")
		allowed, ok := config.allowedOrigin(origin)
		if !ok {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Expose-Headers", corsExpose)
		if config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ParseOrigins splits a comma separated origin list, as it arrives from
// the environment.
func ParseOrigins(values []string) []string {
	var origins []string
	for _, v := range values {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return origins
}
