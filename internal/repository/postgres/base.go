package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/consult-api/internal/repository"
)

var dialect = goqu.Dialect("postgres")

const (
	pgUniqueViolation    pq.ErrorCode = "23505"
	pgExclusionViolation pq.ErrorCode = "23P01"

	requestTokenConstraint = "appointments_request_token_key"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// mapWriteError turns constraint violations into repository sentinels.
// Deferred constraints surface at commit, so it is applied there too.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: %s", repository.ErrOverlap, pqErr.Constraint)
		case pgUniqueViolation:
			if pqErr.Constraint == requestTokenConstraint {
				return repository.ErrDuplicateRequest
			}
		}
	}
	return err
}
