package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// NewDB connects to Postgres, retrying with exponential backoff until
// cfg.ConnectTimeout elapses so containers may start in any order.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB

	connect := func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			return err
		}
		db = conn
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout

	notify := func(err error, next time.Duration) {
		log.ZL.Warn().Err(err).Dur("retry_in", next).Msg("database not ready")
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}
