package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// ActiveStatuses are the statuses that occupy a doctor's time.
var ActiveStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
}

// IsActive reports whether the appointment still blocks its slot.
func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

// IsTerminal reports whether no further transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusCompleted
}

type AppointmentKind string

const (
	AppointmentKindVideo    AppointmentKind = "video"
	AppointmentKindInPerson AppointmentKind = "in_person"
)

func (k AppointmentKind) Valid() bool {
	return k == AppointmentKindVideo || k == AppointmentKindInPerson
}

// MeetingResource is the join link attached to a video appointment.
// IsReal is false for locally synthesized links.
type MeetingResource struct {
	ExternalID string `json:"external_id"`
	JoinURL    string `json:"join_url"`
	IsReal     bool   `json:"is_real"`
}

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       int64             `json:"patient_id"`
	DoctorID        int64             `json:"doctor_id"`
	Kind            AppointmentKind   `json:"type"`
	ScheduledFor    time.Time         `json:"scheduled_for"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Meeting         *MeetingResource  `json:"meeting_resource,omitempty"`
	HospitalName    string            `json:"hospital_name,omitempty"`
	HospitalAddress string            `json:"hospital_address,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Symptoms        string            `json:"symptoms,omitempty"`
	RequestToken    *string           `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// End is the exclusive end of the appointment interval.
func (a *Appointment) End() time.Time {
	return a.ScheduledFor.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// AppointmentView is an appointment joined with the display fields of
// the doctor and patient it belongs to.
type AppointmentView struct {
	Appointment
	DoctorName      string  `json:"doctor_name"`
	DoctorSpecialty string  `json:"doctor_specialty,omitempty"`
	DoctorImage     string  `json:"doctor_image,omitempty"`
	ConsultationFee float64 `json:"consultation_fee,omitempty"`
	PatientName     string  `json:"patient_name,omitempty"`
	PatientEmail    string  `json:"patient_email,omitempty"`
}

// Booking is the slice of an appointment the availability check needs.
type Booking struct {
	AppointmentID   uuid.UUID `db:"id"`
	Start           time.Time `db:"scheduled_for"`
	DurationMinutes int       `db:"duration_minutes"`
}

func (b Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

type BookRequest struct {
	PatientID       int64
	PatientEmail    string
	DoctorID        int64
	ScheduledFor    time.Time
	Kind            AppointmentKind
	DurationMinutes int
	Reason          string
	Symptoms        string
	HospitalName    string
	HospitalAddress string
	// RequestToken makes a retried Book return the first result.
	RequestToken string
}
