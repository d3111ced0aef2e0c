package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OpsAlert is an operator queue entry: a compensation that needs human
// follow-up, or a payment the gateway settled in a way the saga did not
// expect.
type OpsAlert struct {
	AlertID   string    `db:"alert_id" json:"alert_id"`
	BookingID string    `db:"booking_id" json:"booking_id"`
	Kind      string    `db:"kind" json:"kind"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type OpsAlertsPostgresRepository struct {
	db *sqlx.DB
}

func NewOpsAlertsPostgresRepository(db *sqlx.DB) *OpsAlertsPostgresRepository {
	if db == nil {
		panic("db must be set")
	}
	return &OpsAlertsPostgresRepository{db: db}
}

func (r *OpsAlertsPostgresRepository) Add(ctx context.Context, bookingID, kind, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ops_alerts (alert_id, booking_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), bookingID, kind, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not add ops alert: %w", err)
	}
	return nil
}

func (r *OpsAlertsPostgresRepository) FindAll(ctx context.Context) ([]OpsAlert, error) {
	var alerts []OpsAlert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT alert_id, booking_id, kind, detail, created_at
		FROM ops_alerts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("could not list ops alerts: %w", err)
	}
	return alerts, nil
}
