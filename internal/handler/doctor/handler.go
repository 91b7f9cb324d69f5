package doctor

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/service/schedule"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

type ScheduleService interface {
	ParseDate(value string) (time.Time, error)
	AvailableSlots(ctx context.Context, doctorID int64, date time.Time) (*schedule.Availability, error)
}

type Handler struct {
	schedule ScheduleService
}

func NewHandler(schedule ScheduleService) *Handler {
	return &Handler{schedule: schedule}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/doctors/:id/availability", h.Availability)
}

// Availability lists the free template slots of ?date=YYYY-MM-DD.
func (h *Handler) Availability(c *gin.Context) {
	doctorID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || doctorID <= 0 {
		_ = c.Error(errors.BadRequest("invalid doctor ID", err))
		return
	}

	date, err := h.schedule.ParseDate(c.Query("date"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	availability, err := h.schedule.AvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, availability)
}
