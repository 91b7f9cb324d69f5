package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type patientRepository struct {
	db *sqlx.DB
}

func (r *patientRepository) GetContact(ctx context.Context, id int64) (*model.PatientContact, error) {
	query := `SELECT id, name, email FROM users WHERE id = $1`

	var contact model.PatientContact
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient contact: %w", err)
	}
	return &contact, nil
}
