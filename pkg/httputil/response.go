package httputil

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/consult-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps err to a status and envelope. Errors that are
// not AppErrors are logged and reported as internal errors.
func RespondWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.JSON(status, Response{Success: false, Error: body})
}

// AbortWithError is RespondWithError for middleware.
func AbortWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, Response{Success: false, Error: body})
}

func errorBody(c *gin.Context, err error) (int, *Error) {
	if appErr, ok := errors.As(err); ok {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			logInternal(c, err)
		}
		return status, &Error{Code: status, Message: appErr.Message}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, &Error{
			Code:    http.StatusGatewayTimeout,
			Message: "request timeout",
		}
	}

	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		return http.StatusBadRequest, &Error{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Fields:  fields,
		}
	}

	logInternal(c, err)
	return http.StatusInternalServerError, &Error{
		Code:    http.StatusInternalServerError,
		Message: "Internal server error",
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field is required"
	case "email":
		return "Invalid email format"
	case "min", "gt", "gte":
		return "Value is too small"
	case "max", "lt", "lte":
		return "Value is too large"
	case "oneof":
		return "Value must be one of: " + fe.Param()
	default:
		return fe.Error()
	}
}

func logInternal(c *gin.Context, err error) {
	log.Error().
		Err(err).
		Str("request_id", c.GetString("request_id")).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("Request failed")
}
