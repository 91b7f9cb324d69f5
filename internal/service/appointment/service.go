package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	"github.com/jwalitptl/consult-api/internal/service/meeting"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Business rules for booking requests
const (
	DefaultDuration = 30
	MaxDuration     = 240
	DefaultReason   = "General checkup"
)

const slotUnavailableMsg = "doctor is not available at the requested time"

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusScheduled: {model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled},
	model.AppointmentStatusConfirmed: {model.AppointmentStatusCancelled, model.AppointmentStatusCompleted},
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Config struct {
	DefaultDuration int
}

type Service struct {
	repo     repository.AppointmentRepository
	doctors  repository.DoctorRepository
	provider meeting.Provider
	checker  *availability.Checker
	cfg      Config
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	provider meeting.Provider,
	cfg Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	return &Service{
		repo:     repo,
		doctors:  doctors,
		provider: provider,
		checker:  availability.NewChecker(repo),
		cfg:      cfg,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

// Book creates a scheduled appointment. Video appointments always get a
// meeting resource; a failing calendar provider degrades to a synthetic
// link instead of failing the booking.
func (s *Service) Book(ctx context.Context, req *model.BookRequest) (*model.Appointment, error) {
	if err := s.validate(req); err != nil {
		s.recordBooking(req.Kind, "invalid")
		return nil, err
	}

	if req.RequestToken != "" {
		existing, err := s.repo.GetByRequestToken(ctx, req.PatientID, req.RequestToken)
		if err == nil {
			s.recordBooking(req.Kind, "replayed")
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up request token: %w", err)
		}
	}

	doctor, err := s.doctors.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordBooking(req.Kind, "doctor_not_found")
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}

	now := s.now().UTC()
	apt := &model.Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Kind:            req.Kind,
		ScheduledFor:    req.ScheduledFor.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          model.AppointmentStatusScheduled,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.RequestToken != "" {
		token := req.RequestToken
		apt.RequestToken = &token
	}

	if apt.Kind == model.AppointmentKindInPerson {
		apt.HospitalName = firstNonEmpty(req.HospitalName, doctor.HospitalName)
		apt.HospitalAddress = firstNonEmpty(req.HospitalAddress, doctor.HospitalAddress)
		if apt.HospitalName == "" || apt.HospitalAddress == "" {
			s.recordBooking(req.Kind, "invalid")
			return nil, apperrors.BadRequest("hospital_name and hospital_address are required for in-person appointments", nil)
		}
	}

	available, err := s.checker.IsAvailable(ctx, apt.DoctorID, apt.ScheduledFor, apt.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if !available {
		s.recordBooking(req.Kind, "conflict")
		return nil, apperrors.Conflict(slotUnavailableMsg, nil)
	}

	// The provider call happens outside the doctor lock so a slow
	// calendar never holds up other bookings for the same doctor.
	if apt.Kind == model.AppointmentKindVideo {
		res := s.provider.CreateMeeting(ctx, meetingRequest(apt, doctor, req.PatientEmail))
		apt.Meeting = &res
	}

	evt, err := model.NewAppointmentEvent(model.EventAppointmentBooked, apt, req.PatientEmail)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithDoctorLock(ctx, apt.DoctorID, func(tx repository.AppointmentTx) error {
		free, err := availability.NewChecker(tx).IsAvailable(ctx, apt.DoctorID, apt.ScheduledFor, apt.DurationMinutes)
		if err != nil {
			return err
		}
		if !free {
			return repository.ErrOverlap
		}
		if err := tx.Insert(ctx, apt); err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, evt)
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrOverlap):
		s.logOrphanedMeeting(apt)
		s.recordBooking(req.Kind, "conflict")
		return nil, apperrors.Conflict(slotUnavailableMsg, err)
	case errors.Is(err, repository.ErrDuplicateRequest):
		s.logOrphanedMeeting(apt)
		existing, getErr := s.repo.GetByRequestToken(ctx, req.PatientID, req.RequestToken)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load replayed booking: %w", getErr)
		}
		s.recordBooking(req.Kind, "replayed")
		return existing, nil
	default:
		s.recordBooking(req.Kind, "error")
		return nil, fmt.Errorf("failed to book appointment: %w", err)
	}

	s.recordBooking(req.Kind, "booked")
	s.logger.ZL.Info().
		Str("appointment_id", apt.ID.String()).
		Int64("doctor_id", apt.DoctorID).
		Int64("patient_id", apt.PatientID).
		Time("scheduled_for", apt.ScheduledFor).
		Str("kind", string(apt.Kind)).
		Msg("appointment booked")

	return apt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

// Cancel is idempotent: cancelling a cancelled appointment returns it
// unchanged. Completed appointments cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case model.AppointmentStatusCancelled:
		return current, nil
	case model.AppointmentStatusCompleted:
		return nil, apperrors.Conflict("cannot cancel a completed appointment", nil)
	}

	apt, err := s.transition(ctx, current, model.AppointmentStatusCancelled, model.EventAppointmentCancelled)
	if err != nil && apperrors.Is(err, apperrors.ErrConflict) {
		// lost a race with another writer; a concurrent cancel still counts
		latest, getErr := s.Get(ctx, id)
		if getErr == nil && latest.Status == model.AppointmentStatusCancelled {
			return latest, nil
		}
	}
	return apt, err
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, current, model.AppointmentStatusConfirmed, model.EventAppointmentConfirmed)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, current, model.AppointmentStatusCompleted, model.EventAppointmentCompleted)
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID int64) ([]*model.AppointmentView, error) {
	if patientID <= 0 {
		return nil, apperrors.BadRequest("patient_id is required", nil)
	}
	views, err := s.repo.QueryByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return views, nil
}

func (s *Service) transition(ctx context.Context, current *model.Appointment, to model.AppointmentStatus, eventType string) (*model.Appointment, error) {
	if !CanTransition(current.Status, to) {
		return nil, apperrors.Conflict(fmt.Sprintf("invalid status transition from %s to %s", current.Status, to), nil)
	}

	var updated *model.Appointment
	err := s.repo.WithTx(ctx, func(tx repository.AppointmentTx) error {
		apt, err := tx.UpdateStatus(ctx, current.ID, current.Status, to)
		if err != nil {
			return err
		}
		evt, err := model.NewAppointmentEvent(eventType, apt, "")
		if err != nil {
			return err
		}
		if err := tx.AddOutboxEvent(ctx, evt); err != nil {
			return err
		}
		updated = apt
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("appointment", err)
	case errors.Is(err, repository.ErrStatusChanged):
		return nil, apperrors.Conflict("appointment status changed concurrently", err)
	default:
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}

	s.metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	s.logger.ZL.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")

	return updated, nil
}

func (s *Service) validate(req *model.BookRequest) error {
	if req.DoctorID <= 0 {
		return apperrors.BadRequest("doctor_id is required", nil)
	}
	if req.PatientID <= 0 {
		return apperrors.BadRequest("patient_id is required", nil)
	}
	if req.ScheduledFor.IsZero() {
		return apperrors.BadRequest("scheduled_for is required", nil)
	}

	if req.Kind == "" {
		req.Kind = model.AppointmentKindVideo
	}
	if !req.Kind.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("invalid appointment type %q", req.Kind), nil)
	}

	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.cfg.DefaultDuration
	}
	if req.DurationMinutes < 1 || req.DurationMinutes > MaxDuration {
		return apperrors.BadRequest(fmt.Sprintf("duration_minutes must be between 1 and %d", MaxDuration), nil)
	}

	req.RequestToken = strings.TrimSpace(req.RequestToken)
	return nil
}

// logOrphanedMeeting records a calendar event that was created for a
// booking that did not persist. Synthetic links have nothing upstream.
func (s *Service) logOrphanedMeeting(apt *model.Appointment) {
	if apt.Meeting == nil || !apt.Meeting.IsReal {
		return
	}
	s.logger.ZL.Warn().
		Str("external_id", apt.Meeting.ExternalID).
		Int64("doctor_id", apt.DoctorID).
		Time("scheduled_for", apt.ScheduledFor).
		Msg("calendar event created for a booking that was not stored")
}

func (s *Service) recordBooking(kind model.AppointmentKind, outcome string) {
	if !kind.Valid() {
		kind = "unknown"
	}
	s.metrics.Bookings.WithLabelValues(string(kind), outcome).Inc()
}

func meetingRequest(apt *model.Appointment, doctor *model.Doctor, patientEmail string) meeting.Request {
	reason := firstNonEmpty(apt.Reason, DefaultReason)

	var desc strings.Builder
	fmt.Fprintf(&desc, "Consultation with Dr. %s", doctor.Name)
	if doctor.Specialty != "" {
		fmt.Fprintf(&desc, " (%s)", doctor.Specialty)
	}
	fmt.Fprintf(&desc, "\nReason: %s", reason)
	if patientEmail != "" {
		fmt.Fprintf(&desc, "\nPatient: %s", patientEmail)
	}

	return meeting.Request{
		Summary:     "Appointment with Dr. " + doctor.Name,
		Description: desc.String(),
		Start:       apt.ScheduledFor,
		End:         apt.End(),
		Attendees:   []string{patientEmail, doctor.Email},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
