package appointment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

// HeaderIdempotencyKey carries the client's request token for Book.
const HeaderIdempotencyKey = "Idempotency-Key"

type Service interface {
	Book(ctx context.Context, req *model.BookRequest) (*model.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	ListForPatient(ctx context.Context, patientID int64) ([]*model.AppointmentView, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("/book", h.Book)
		appointments.GET("/my-appointments", h.ListMine)
		appointments.GET("/:id", h.Get)
		appointments.PUT("/:id/cancel", h.Cancel)
		appointments.PUT("/:id/confirm", h.Confirm)
		appointments.PUT("/:id/complete", h.Complete)
	}

	r.POST("/doctors/:id/book", h.BookWithDoctor)
}

// BookDetails is the booking body shared by both booking routes.
type BookDetails struct {
	ScheduledFor    time.Time             `json:"scheduled_for" binding:"required"`
	Kind            model.AppointmentKind `json:"type" binding:"omitempty,appointment_kind"`
	DurationMinutes int                   `json:"duration_minutes" binding:"omitempty,gt=0,lte=240"`
	Reason          string                `json:"reason" binding:"omitempty,max=500"`
	Symptoms        string                `json:"symptoms" binding:"omitempty,max=2000"`
	HospitalName    string                `json:"hospital_name" binding:"omitempty,max=200"`
	HospitalAddress string                `json:"hospital_address" binding:"omitempty,max=500"`
	RequestToken    string                `json:"request_token" binding:"omitempty,max=128"`
}

type BookAppointmentRequest struct {
	DoctorID int64 `json:"doctor_id" binding:"required,gt=0"`
	BookDetails
}

func (h *Handler) Book(c *gin.Context) {
	var req BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	h.book(c, req.DoctorID, req.BookDetails)
}

// BookWithDoctor books with the doctor taken from the path.
func (h *Handler) BookWithDoctor(c *gin.Context) {
	doctorID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || doctorID <= 0 {
		_ = c.Error(errors.BadRequest("invalid doctor ID", err))
		return
	}

	var req BookDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	h.book(c, doctorID, req)
}

func (h *Handler) book(c *gin.Context, doctorID int64, req BookDetails) {
	patientID, ok := middleware.PatientID(c)
	if !ok {
		_ = c.Error(errors.Unauthorized(nil))
		return
	}

	token := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if token == "" {
		token = req.RequestToken
	}

	apt, err := h.service.Book(c.Request.Context(), &model.BookRequest{
		PatientID:       patientID,
		PatientEmail:    middleware.PatientEmail(c),
		DoctorID:        doctorID,
		ScheduledFor:    req.ScheduledFor,
		Kind:            req.Kind,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		HospitalName:    req.HospitalName,
		HospitalAddress: req.HospitalAddress,
		RequestToken:    token,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) ListMine(c *gin.Context) {
	patientID, ok := middleware.PatientID(c)
	if !ok {
		_ = c.Error(errors.Unauthorized(nil))
		return
	}

	views, err := h.service.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if views == nil {
		views = []*model.AppointmentView{}
	}

	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) Get(c *gin.Context) {
	apt, ok := h.owned(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) (*model.Appointment, error)) {
	current, ok := h.owned(c)
	if !ok {
		return
	}

	apt, err := fn(c.Request.Context(), current.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// owned loads the appointment in the path. Appointments of other
// patients are reported as not found.
func (h *Handler) owned(c *gin.Context) (*model.Appointment, bool) {
	patientID, ok := middleware.PatientID(c)
	if !ok {
		_ = c.Error(errors.Unauthorized(nil))
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(errors.BadRequest("invalid appointment ID", err))
		return nil, false
	}

	apt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if apt.PatientID != patientID {
		_ = c.Error(errors.NotFound("appointment", nil))
		return nil, false
	}
	return apt, true
}

// bindError keeps validator errors intact for field-level messages and
// turns malformed bodies into a bad request.
func bindError(err error) error {
	if _, ok := err.(validator.ValidationErrors); ok {
		return err
	}
	return errors.BadRequest("invalid request body", err)
}
