package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusRetry      OutboxStatus = "retry"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentCompleted = "appointment.completed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEvent is the payload published for every lifecycle change.
type AppointmentEvent struct {
	Type         string       `json:"type"`
	Appointment  *Appointment `json:"appointment"`
	PatientEmail string       `json:"patient_email,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// NewAppointmentEvent builds a pending outbox row for apt.
func NewAppointmentEvent(eventType string, apt *Appointment, patientEmail string) (*OutboxEvent, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(AppointmentEvent{
		Type:         eventType,
		Appointment:  apt,
		PatientEmail: patientEmail,
		OccurredAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
