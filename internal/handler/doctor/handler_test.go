package doctor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/schedule"
)

type doctors map[int64]*model.Doctor

func (d doctors) GetDoctor(_ context.Context, id int64) (*model.Doctor, error) {
	if doc, ok := d[id]; ok {
		return doc, nil
	}
	return nil, repository.ErrNotFound
}

type bookings []model.Booking

func (b bookings) BookingsBetween(_ context.Context, _ int64, from, to time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, bk := range b {
		if !bk.Start.Before(from) && bk.Start.Before(to) {
			out = append(out, bk)
		}
	}
	return out, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	tmpl, err := schedule.NewFixedTemplate([]string{"09:00", "09:30", "10:00"})
	require.NoError(t, err)

	// 09:30 IST is 04:00 UTC
	booked := bookings{{Start: time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC), DurationMinutes: 30}}
	svc := schedule.NewService(booked, doctors{7: {ID: 7, Name: "Rao"}}, tmpl, loc)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestAvailability(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/doctors/7/availability?date=2025-03-10", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Data    schedule.Availability `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "2025-03-10", resp.Data.Date)
	assert.Equal(t, []string{"09:00", "10:00"}, resp.Data.AvailableSlots)
	assert.Equal(t, []string{"09:30"}, resp.Data.BookedStarts)
}

func TestAvailabilityErrors(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing date", "/api/v1/doctors/7/availability", http.StatusBadRequest},
		{"bad date", "/api/v1/doctors/7/availability?date=10-03-2025", http.StatusBadRequest},
		{"bad doctor id", "/api/v1/doctors/abc/availability?date=2025-03-10", http.StatusBadRequest},
		{"unknown doctor", "/api/v1/doctors/99/availability?date=2025-03-10", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
