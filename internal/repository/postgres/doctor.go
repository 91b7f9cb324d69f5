package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type doctorRepository struct {
	db *sqlx.DB
}

func (r *doctorRepository) GetDoctor(ctx context.Context, id int64) (*model.Doctor, error) {
	query, args, err := dialect.From("doctors").Prepared(true).
		Select("id", "name", "email", "specialty", "hospital_name", "hospital_address",
			"consultation_fee", "profile_image").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build doctor query: %w", err)
	}

	var doctor model.Doctor
	if err := r.db.GetContext(ctx, &doctor, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &doctor, nil
}
