package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"not found", NotFound("doctor", nil), http.StatusNotFound},
		{"bad request", BadRequest("doctor_id is required", nil), http.StatusBadRequest},
		{"conflict", Conflict("time slot is not available", nil), http.StatusConflict},
		{"unauthorized", Unauthorized(nil), http.StatusUnauthorized},
		{"internal", Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
		{"rate limited", TooManyRequests(), http.StatusTooManyRequests},
		{"timeout", Timeout(nil), http.StatusGatewayTimeout},
		{"renamed", Unauthorized(nil).WithMessage("invalid token"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestIsUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("failed to book: %w", Conflict("time slot is not available", nil))

	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrNotFound))
	assert.False(t, Is(fmt.Errorf("plain"), ErrConflict))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "time slot is not available", appErr.Message)
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NotFound("appointment", fmt.Errorf("no rows"))
	assert.Equal(t, "appointment not found: no rows", err.Error())
	assert.Equal(t, "doctor not found", NotFound("doctor", nil).Error())
}
