// Package schedule answers "which slots are still free" for a doctor and
// a calendar date.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// BookingWindowReader lists active bookings starting in [from, to).
type BookingWindowReader interface {
	BookingsBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]model.Booking, error)
}

// TemplateResolver yields the candidate start times for a doctor's day.
// Per-weekday working hours plug in here.
type TemplateResolver interface {
	Slots(ctx context.Context, doctorID int64, date time.Time) ([]string, error)
}

// FixedTemplate offers the same slots every day for every doctor.
type FixedTemplate struct {
	slots []string
}

// NewFixedTemplate validates and sorts slots ("HH:MM").
func NewFixedTemplate(slots []string) (*FixedTemplate, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("slot template is empty")
	}

	normalized := make([]string, 0, len(slots))
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		t, err := time.Parse(SlotLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid slot %q: %w", s, err)
		}
		key := t.Format(SlotLayout)
		if seen[key] {
			continue
		}
		seen[key] = true
		normalized = append(normalized, key)
	}
	sort.Strings(normalized)

	return &FixedTemplate{slots: normalized}, nil
}

func (f *FixedTemplate) Slots(context.Context, int64, time.Time) ([]string, error) {
	out := make([]string, len(f.slots))
	copy(out, f.slots)
	return out, nil
}

type Availability struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
	BookedStarts   []string `json:"booked_slots"`
}

type Service struct {
	bookings  BookingWindowReader
	doctors   repository.DoctorRepository
	templates TemplateResolver
	loc       *time.Location
}

// NewService interprets dates and slot times in loc.
func NewService(bookings BookingWindowReader, doctors repository.DoctorRepository, templates TemplateResolver, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{bookings: bookings, doctors: doctors, templates: templates, loc: loc}
}

// ParseDate reads a YYYY-MM-DD date as local midnight.
func (s *Service) ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.BadRequest("date is required", nil)
	}
	d, err := time.ParseInLocation(DateLayout, value, s.loc)
	if err != nil {
		return time.Time{}, apperrors.BadRequest("date must be formatted as YYYY-MM-DD", err)
	}
	return d, nil
}

// AvailableSlots returns the template slots of date that no active
// appointment starts at, ascending, together with the booked starts.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, date time.Time) (*Availability, error) {
	if doctorID <= 0 {
		return nil, apperrors.BadRequest("doctor_id is required", nil)
	}

	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}

	local := date.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	candidates, err := s.templates.Slots(ctx, doctorID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slot template: %w", err)
	}

	bookings, err := s.bookings.BookingsBetween(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	booked := make(map[string]bool, len(bookings))
	bookedStarts := make([]string, 0, len(bookings))
	for _, b := range bookings {
		start := b.Start.In(s.loc).Format(SlotLayout)
		if !booked[start] {
			booked[start] = true
			bookedStarts = append(bookedStarts, start)
		}
	}
	sort.Strings(bookedStarts)

	available := make([]string, 0, len(candidates))
	for _, slot := range candidates {
		if !booked[slot] {
			available = append(available, slot)
		}
	}
	sort.Strings(available)

	return &Availability{
		Date:           dayStart.Format(DateLayout),
		AvailableSlots: available,
		BookedStarts:   bookedStarts,
	}, nil
}
