package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

const (
	ContextPatientID    = "patient_id"
	ContextPatientEmail = "patient_email"
)

type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate verifies the bearer token and sets the patient in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.AbortWithError(c, errors.Unauthorized(nil).WithMessage("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.AbortWithError(c, errors.Unauthorized(nil).WithMessage("invalid authorization format"))
			return
		}

		claims, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			httputil.AbortWithError(c, errors.Unauthorized(err).WithMessage("invalid token"))
			return
		}

		c.Set(ContextPatientID, claims.PatientID)
		c.Set(ContextPatientEmail, claims.Email)
		c.Next()
	}
}

// PatientID returns the authenticated patient, if any.
func PatientID(c *gin.Context) (int64, bool) {
	id, ok := c.Get(ContextPatientID)
	if !ok {
		return 0, false
	}
	pid, ok := id.(int64)
	return pid, ok && pid > 0
}

func PatientEmail(c *gin.Context) string {
	return c.GetString(ContextPatientEmail)
}
