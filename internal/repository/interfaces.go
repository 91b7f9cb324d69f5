package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrOverlap is returned when an insert would overlap an active
	// appointment of the same doctor.
	ErrOverlap = errors.New("appointment overlaps an active booking")
	// ErrDuplicateRequest is returned when the patient already used the request token.
	ErrDuplicateRequest = errors.New("request token already used")
	// ErrStatusChanged is returned by a conditional status update whose
	// expected status no longer matches.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// BookingReader lists the intervals a doctor is booked for.
type BookingReader interface {
	QueryByDoctorAndStatus(ctx context.Context, doctorID int64, statuses []model.AppointmentStatus) ([]model.Booking, error)
}

// AppointmentTx is the unit of work handed to WithDoctorLock and WithTx.
type AppointmentTx interface {
	BookingReader
	Insert(ctx context.Context, apt *model.Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus) (*model.Appointment, error)
	AddOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error
}

type AppointmentRepository interface {
	BookingReader
	// WithDoctorLock runs fn in a transaction that holds a lock scoped to
	// doctorID until commit.
	WithDoctorLock(ctx context.Context, doctorID int64, fn func(tx AppointmentTx) error) error
	WithTx(ctx context.Context, fn func(tx AppointmentTx) error) error
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	GetByRequestToken(ctx context.Context, patientID int64, token string) (*model.Appointment, error)
	QueryByPatient(ctx context.Context, patientID int64) ([]*model.AppointmentView, error)
	BookingsBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]model.Booking, error)
}

type DoctorRepository interface {
	GetDoctor(ctx context.Context, id int64) (*model.Doctor, error)
}

type PatientRepository interface {
	GetContact(ctx context.Context, id int64) (*model.PatientContact, error)
}

type OutboxRepository interface {
	// ClaimPending marks up to limit due events as processing and returns them.
	ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
