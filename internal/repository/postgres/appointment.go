package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

const (
	appointmentsTable = "appointments"

	// Prefix of the advisory lock key; hashed to a bigint so the full
	// doctor id takes part and other lock users do not collide with it.
	bookingLockPrefix = "booking:doctor:"
)

// doctorLockKey is the text hashed into the per-doctor advisory lock.
func doctorLockKey(doctorID int64) string {
	return bookingLockPrefix + strconv.FormatInt(doctorID, 10)
}

var appointmentColumns = []string{
	"id", "patient_id", "doctor_id", "type", "scheduled_for", "duration_minutes", "status",
	"meeting_external_id", "meeting_join_url", "meeting_is_real",
	"hospital_name", "hospital_address", "reason", "symptoms", "request_token",
	"created_at", "updated_at",
}

type appointmentRow struct {
	ID                uuid.UUID      `db:"id"`
	PatientID         int64          `db:"patient_id"`
	DoctorID          int64          `db:"doctor_id"`
	Kind              string         `db:"type"`
	ScheduledFor      time.Time      `db:"scheduled_for"`
	DurationMinutes   int            `db:"duration_minutes"`
	Status            string         `db:"status"`
	MeetingExternalID sql.NullString `db:"meeting_external_id"`
	MeetingJoinURL    sql.NullString `db:"meeting_join_url"`
	MeetingIsReal     sql.NullBool   `db:"meeting_is_real"`
	HospitalName      string         `db:"hospital_name"`
	HospitalAddress   string         `db:"hospital_address"`
	Reason            string         `db:"reason"`
	Symptoms          string         `db:"symptoms"`
	RequestToken      sql.NullString `db:"request_token"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *appointmentRow) toModel() *model.Appointment {
	apt := &model.Appointment{
		ID:              r.ID,
		PatientID:       r.PatientID,
		DoctorID:        r.DoctorID,
		Kind:            model.AppointmentKind(r.Kind),
		ScheduledFor:    r.ScheduledFor.UTC(),
		DurationMinutes: r.DurationMinutes,
		Status:          model.AppointmentStatus(r.Status),
		HospitalName:    r.HospitalName,
		HospitalAddress: r.HospitalAddress,
		Reason:          r.Reason,
		Symptoms:        r.Symptoms,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.MeetingJoinURL.Valid {
		apt.Meeting = &model.MeetingResource{
			ExternalID: r.MeetingExternalID.String,
			JoinURL:    r.MeetingJoinURL.String,
			IsReal:     r.MeetingIsReal.Bool,
		}
	}
	if r.RequestToken.Valid {
		token := r.RequestToken.String
		apt.RequestToken = &token
	}
	return apt
}

func appointmentRecord(apt *model.Appointment) goqu.Record {
	rec := goqu.Record{
		"id":                  apt.ID,
		"patient_id":          apt.PatientID,
		"doctor_id":           apt.DoctorID,
		"type":                string(apt.Kind),
		"scheduled_for":       apt.ScheduledFor.UTC(),
		"duration_minutes":    apt.DurationMinutes,
		"status":              string(apt.Status),
		"meeting_external_id": sql.NullString{},
		"meeting_join_url":    sql.NullString{},
		"meeting_is_real":     sql.NullBool{},
		"hospital_name":       apt.HospitalName,
		"hospital_address":    apt.HospitalAddress,
		"reason":              apt.Reason,
		"symptoms":            apt.Symptoms,
		"request_token":       sql.NullString{},
		"created_at":          apt.CreatedAt,
		"updated_at":          apt.UpdatedAt,
	}
	if apt.Meeting != nil {
		rec["meeting_external_id"] = sql.NullString{String: apt.Meeting.ExternalID, Valid: true}
		rec["meeting_join_url"] = sql.NullString{String: apt.Meeting.JoinURL, Valid: true}
		rec["meeting_is_real"] = sql.NullBool{Bool: apt.Meeting.IsReal, Valid: true}
	}
	if apt.RequestToken != nil {
		rec["request_token"] = sql.NullString{String: *apt.RequestToken, Valid: true}
	}
	return rec
}

func columnsOf(alias string) []interface{} {
	cols := make([]interface{}, len(appointmentColumns))
	for i, c := range appointmentColumns {
		if alias == "" {
			cols[i] = goqu.C(c)
		} else {
			cols[i] = goqu.I(alias + "." + c)
		}
	}
	return cols
}

func statusValues(statuses []model.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func selectBookings(ctx context.Context, q sqlx.QueryerContext, where ...exp.Expression) ([]model.Booking, error) {
	query, args, err := dialect.From(appointmentsTable).Prepared(true).
		Select("id", "scheduled_for", "duration_minutes").
		Where(where...).
		Order(goqu.C("scheduled_for").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build bookings query: %w", err)
	}

	var bookings []model.Booking
	if err := sqlx.SelectContext(ctx, q, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	for i := range bookings {
		bookings[i].Start = bookings[i].Start.UTC()
	}
	return bookings, nil
}

func getAppointment(ctx context.Context, q sqlx.QueryerContext, where ...exp.Expression) (*model.Appointment, error) {
	query, args, err := dialect.From(appointmentsTable).Prepared(true).
		Select(columnsOf("")...).
		Where(where...).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build appointment query: %w", err)
	}

	var row appointmentRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return row.toModel(), nil
}

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *appointmentRepository) QueryByDoctorAndStatus(ctx context.Context, doctorID int64, statuses []model.AppointmentStatus) ([]model.Booking, error) {
	return selectBookings(ctx, r.db,
		goqu.C("doctor_id").Eq(doctorID),
		goqu.C("status").In(statusValues(statuses)),
	)
}

func (r *appointmentRepository) BookingsBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]model.Booking, error) {
	return selectBookings(ctx, r.db,
		goqu.C("doctor_id").Eq(doctorID),
		goqu.C("status").In(statusValues(model.ActiveStatuses)),
		goqu.C("scheduled_for").Gte(from.UTC()),
		goqu.C("scheduled_for").Lt(to.UTC()),
	)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return getAppointment(ctx, r.db, goqu.C("id").Eq(id))
}

func (r *appointmentRepository) GetByRequestToken(ctx context.Context, patientID int64, token string) (*model.Appointment, error) {
	return getAppointment(ctx, r.db,
		goqu.C("patient_id").Eq(patientID),
		goqu.C("request_token").Eq(token),
	)
}

type appointmentViewRow struct {
	appointmentRow
	DoctorName      string         `db:"doctor_name"`
	DoctorSpecialty string         `db:"doctor_specialty"`
	DoctorImage     string         `db:"doctor_image"`
	ConsultationFee float64        `db:"consultation_fee"`
	PatientName     sql.NullString `db:"patient_name"`
	PatientEmail    sql.NullString `db:"patient_email"`
}

func (r *appointmentRepository) QueryByPatient(ctx context.Context, patientID int64) ([]*model.AppointmentView, error) {
	cols := append(columnsOf("a"),
		goqu.I("d.name").As("doctor_name"),
		goqu.I("d.specialty").As("doctor_specialty"),
		goqu.I("d.profile_image").As("doctor_image"),
		goqu.I("d.consultation_fee").As("consultation_fee"),
		goqu.I("u.name").As("patient_name"),
		goqu.I("u.email").As("patient_email"),
	)

	query, args, err := dialect.From(goqu.T(appointmentsTable).As("a")).Prepared(true).
		Join(goqu.T("doctors").As("d"), goqu.On(goqu.I("a.doctor_id").Eq(goqu.I("d.id")))).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("a.patient_id").Eq(goqu.I("u.id")))).
		Select(cols...).
		Where(goqu.I("a.patient_id").Eq(patientID)).
		Order(goqu.I("a.scheduled_for").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build patient appointments query: %w", err)
	}

	var rows []appointmentViewRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patient appointments: %w", err)
	}

	views := make([]*model.AppointmentView, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		views = append(views, &model.AppointmentView{
			Appointment:     *row.toModel(),
			DoctorName:      row.DoctorName,
			DoctorSpecialty: row.DoctorSpecialty,
			DoctorImage:     row.DoctorImage,
			ConsultationFee: row.ConsultationFee,
			PatientName:     row.PatientName.String,
			PatientEmail:    row.PatientEmail.String,
		})
	}
	return views, nil
}

func (r *appointmentRepository) WithTx(ctx context.Context, fn func(tx repository.AppointmentTx) error) error {
	return r.BaseRepository.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&appointmentTx{tx: tx})
	})
}

// WithDoctorLock serialises bookings per doctor: the advisory lock is
// released automatically at commit or rollback.
func (r *appointmentRepository) WithDoctorLock(ctx context.Context, doctorID int64, fn func(tx repository.AppointmentTx) error) error {
	return r.BaseRepository.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", doctorLockKey(doctorID)); err != nil {
			return fmt.Errorf("failed to lock doctor %d: %w", doctorID, err)
		}
		return fn(&appointmentTx{tx: tx})
	})
}

type appointmentTx struct {
	tx *sqlx.Tx
}

func (t *appointmentTx) QueryByDoctorAndStatus(ctx context.Context, doctorID int64, statuses []model.AppointmentStatus) ([]model.Booking, error) {
	return selectBookings(ctx, t.tx,
		goqu.C("doctor_id").Eq(doctorID),
		goqu.C("status").In(statusValues(statuses)),
	)
}

func (t *appointmentTx) Insert(ctx context.Context, apt *model.Appointment) error {
	query, args, err := dialect.Insert(appointmentsTable).Prepared(true).
		Rows(appointmentRecord(apt)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build appointment insert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

func (t *appointmentTx) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus) (*model.Appointment, error) {
	query, args, err := dialect.Update(appointmentsTable).Prepared(true).
		Set(goqu.Record{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(string(from))).
		Returning(columnsOf("")...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build status update: %w", err)
	}

	var row appointmentRow
	if err := t.tx.GetContext(ctx, &row, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to update appointment status: %w", err)
		}
		if _, getErr := getAppointment(ctx, t.tx, goqu.C("id").Eq(id)); getErr != nil {
			return nil, getErr
		}
		return nil, repository.ErrStatusChanged
	}
	return row.toModel(), nil
}

func (t *appointmentTx) AddOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, t.tx, evt)
}
