// Package notification emails patients and doctors about appointment
// lifecycle events relayed from the outbox.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const timeLayout = "Mon, 02 Jan 2006 at 15:04 MST"

type Service struct {
	broker   messaging.Broker
	channel  string
	doctors  repository.DoctorRepository
	patients repository.PatientRepository
	emailSvc email.Service
	metrics  *metrics.Metrics
	logger   *logger.Logger
	loc      *time.Location
}

func NewService(
	broker messaging.Broker,
	channel string,
	doctors repository.DoctorRepository,
	patients repository.PatientRepository,
	emailSvc email.Service,
	m *metrics.Metrics,
	log *logger.Logger,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		broker:   broker,
		channel:  channel,
		doctors:  doctors,
		patients: patients,
		emailSvc: emailSvc,
		metrics:  m,
		logger:   log,
		loc:      loc,
	}
}

// Run consumes the appointment channel until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting notification dispatcher", "channel", s.channel)
	err := messaging.Consume(ctx, s.broker, s.channel, s.Handle, s.logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle sends the emails for one event. Unknown event types are ignored.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) error {
	var evt model.AppointmentEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}
	if evt.Appointment == nil {
		return fmt.Errorf("%s event %s has no appointment", msg.Type, msg.ID)
	}
	apt := evt.Appointment

	doctor, err := s.doctors.GetDoctor(ctx, apt.DoctorID)
	if err != nil {
		return fmt.Errorf("failed to get doctor %d: %w", apt.DoctorID, err)
	}

	patient, err := s.patients.GetContact(ctx, apt.PatientID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to get patient %d: %w", apt.PatientID, err)
	}
	if patient == nil {
		patient = &model.PatientContact{ID: apt.PatientID}
	}
	if evt.PatientEmail != "" {
		patient.Email = evt.PatientEmail
	}

	mails := s.compose(msg.Type, apt, doctor, patient)
	if len(mails) == 0 {
		s.logger.Debug("No notification for event type", "type", msg.Type)
		return nil
	}

	var errs []error
	for _, m := range mails {
		if m.to == "" {
			continue
		}
		if err := s.emailSvc.SendCustom(ctx, m.to, m.subject, m.body); err != nil {
			s.metrics.NotificationsSent.WithLabelValues(msg.Type, "error").Inc()
			errs = append(errs, err)
			continue
		}
		s.metrics.NotificationsSent.WithLabelValues(msg.Type, "sent").Inc()
	}
	return errors.Join(errs...)
}

type mail struct {
	to      string
	subject string
	body    string
}

func (s *Service) compose(eventType string, apt *model.Appointment, doctor *model.Doctor, patient *model.PatientContact) []mail {
	when := apt.ScheduledFor.In(s.loc).Format(timeLayout)
	greeting := "Hello"
	if patient.Name != "" {
		greeting = "Hello " + patient.Name
	}

	switch eventType {
	case model.EventAppointmentBooked:
		return []mail{
			{
				to:      patient.Email,
				subject: "Your appointment with Dr. " + doctor.Name + " is booked",
				body:    fmt.Sprintf("%s,\n\nYour appointment is booked for %s.\n%s", greeting, when, details(apt)),
			},
			{
				to:      doctor.Email,
				subject: "New appointment on " + when,
				body:    fmt.Sprintf("Dr. %s,\n\nA new appointment was booked for %s.\n%s", doctor.Name, when, details(apt)),
			},
		}
	case model.EventAppointmentConfirmed:
		return []mail{{
			to:      patient.Email,
			subject: "Your appointment with Dr. " + doctor.Name + " is confirmed",
			body:    fmt.Sprintf("%s,\n\nDr. %s confirmed your appointment on %s.\n%s", greeting, doctor.Name, when, details(apt)),
		}}
	case model.EventAppointmentCancelled:
		return []mail{
			{
				to:      patient.Email,
				subject: "Your appointment with Dr. " + doctor.Name + " was cancelled",
				body:    fmt.Sprintf("%s,\n\nYour appointment on %s was cancelled.\n", greeting, when),
			},
			{
				to:      doctor.Email,
				subject: "Appointment on " + when + " cancelled",
				body:    fmt.Sprintf("Dr. %s,\n\nThe appointment on %s was cancelled and the slot is free again.\n", doctor.Name, when),
			},
		}
	case model.EventAppointmentCompleted:
		return []mail{{
			to:      patient.Email,
			subject: "Thank you for visiting Dr. " + doctor.Name,
			body:    fmt.Sprintf("%s,\n\nYour appointment on %s is complete.\n", greeting, when),
		}}
	}
	return nil
}

func details(apt *model.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Duration: %d minutes\n", apt.DurationMinutes)
	if apt.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", apt.Reason)
	}
	switch {
	case apt.Kind == model.AppointmentKindVideo && apt.Meeting != nil:
		fmt.Fprintf(&b, "Join: %s\n", apt.Meeting.JoinURL)
	case apt.Kind == model.AppointmentKindInPerson:
		fmt.Fprintf(&b, "Location: %s, %s\n", apt.HospitalName, apt.HospitalAddress)
	}
	return b.String()
}
