package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"travelbook/entity"
)

const postgresUniqueValueViolationErrorCode = "23505"

func NewSQLXConnection(postgresURL string) (*sqlx.DB, error) {
	conn, err := otelsql.Open(
		"postgres",
		postgresURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("could not open postgres connection: %w", err)
	}

	return sqlx.NewDb(conn, "postgres"), nil
}

var schema = `
CREATE TABLE IF NOT EXISTS bookings (
	booking_id UUID PRIMARY KEY,
	client_id VARCHAR(36) NOT NULL,
	booking_type VARCHAR(16) NOT NULL,
	status VARCHAR(16) NOT NULL,
	holder_email VARCHAR(255) NOT NULL,
	voucher_sent_at TIMESTAMPTZ NULL,
	version INT NOT NULL DEFAULT 1,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	payment_id UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings (booking_id),
	external_id VARCHAR(64) NULL,
	status VARCHAR(16) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS payments_external_id_idx ON payments (external_id);
CREATE INDEX IF NOT EXISTS payments_status_created_at_idx ON payments (status, created_at);

CREATE TABLE IF NOT EXISTS ops_alerts (
	alert_id UUID PRIMARY KEY,
	booking_id UUID NOT NULL,
	kind VARCHAR(64) NOT NULL,
	detail TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	return nil
}

// UpdateInTx runs f inside a transaction at the given isolation level,
// committing on success and rolling back on error.
func UpdateInTx(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	f func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
			return
		}
		err = tx.Commit()
	}()

	return f(ctx, tx)
}

func isErrorUniqueViolation(err error) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresUniqueValueViolationErrorCode
}

// mapNoRows converts sql.ErrNoRows into the domain's not-found error.
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	return err
}
