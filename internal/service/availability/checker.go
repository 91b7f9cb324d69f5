// Package availability decides whether a proposed interval fits into a
// doctor's calendar.
//
// Intervals are half-open: [start, start+duration). Two appointments that
// touch end-to-start do not conflict.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

type Checker struct {
	bookings repository.BookingReader
}

// NewChecker reads bookings from r, which may be the repository itself
// or an open transaction.
func NewChecker(r repository.BookingReader) *Checker {
	return &Checker{bookings: r}
}

// IsAvailable reports whether doctorID has no active appointment
// overlapping [start, start+durationMinutes).
func (c *Checker) IsAvailable(ctx context.Context, doctorID int64, start time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, errors.BadRequest("duration_minutes must be positive", nil)
	}

	existing, err := c.bookings.QueryByDoctorAndStatus(ctx, doctorID, model.ActiveStatuses)
	if err != nil {
		return false, fmt.Errorf("failed to load bookings for doctor %d: %w", doctorID, err)
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return len(FindConflicts(existing, start, end)) == 0, nil
}

// Overlaps is the half-open interval test.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflicts returns the bookings overlapping [start, end).
func FindConflicts(existing []model.Booking, start, end time.Time) []model.Booking {
	var conflicts []model.Booking
	for _, b := range existing {
		if Overlaps(b.Start, b.End(), start, end) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}
