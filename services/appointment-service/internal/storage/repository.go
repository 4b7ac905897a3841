// Package storage is the pgx implementation of the appointment store. All
// coordination happens here through single-row atomic statements: a
// compare-and-swap update for status moves and an insert-if-absent claim for
// idempotency keys. Every transaction starts by binding the tenant id to the
// SQL session with a transaction-local setting, which the row-level-security
// policies read; the binding dies with the transaction, so pooled connections
// cannot leak tenant scope across requests.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/garageboard/garageboard/libs/db"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
	"github.com/garageboard/garageboard/services/appointment-service/internal/outbox"
)

type Repository struct {
	pool    *db.Pool
	outbox  *outbox.Repository
	idemTTL time.Duration
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository, idemTTL time.Duration) *Repository {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Repository{
		pool:    pool,
		outbox:  outboxRepo,
		idemTTL: idemTTL,
	}
}

// beginTenant opens a transaction with the tenant bound as a
// transaction-local session setting for the RLS policies.
func (r *Repository) beginTenant(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

const appointmentColumns = `
	id::text, tenant_id::text, customer_id::text, vehicle_id::text,
	status, version, scheduled_start, scheduled_end,
	service_codes, total_amount_cents, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.CustomerID,
		&appt.VehicleID,
		&status,
		&appt.Version,
		&appt.ScheduledStart,
		&appt.ScheduledEnd,
		&appt.ServiceCodes,
		&appt.TotalAmountCents,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

func (r *Repository) insertAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, tenant_id, customer_id, vehicle_id, status, version,
			 scheduled_start, scheduled_end, service_codes, total_amount_cents,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, appt.ID, appt.TenantID, appt.CustomerID, appt.VehicleID, string(appt.Status), appt.Version,
		appt.ScheduledStart, appt.ScheduledEnd, appt.ServiceCodes, appt.TotalAmountCents,
		appt.CreatedAt, appt.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		// Table CHECK constraints (status enum, version >= 1, start < end,
		// non-negative amount) backstop the service-level validation.
		return &model.ValidationError{Detail: "appointment violates constraint " + pgErr.ConstraintName}
	}
	return err
}

func (r *Repository) insertCreatedEvent(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"tenant_id":      appt.TenantID,
		"customer_id":    appt.CustomerID,
		"vehicle_id":     appt.VehicleID,
		"status":         appt.Status,
		"version":        appt.Version,
		"scheduled_start": appt.ScheduledStart.UTC().Format(time.RFC3339),
		"scheduled_end":   appt.ScheduledEnd.UTC().Format(time.RFC3339),
		"total_amount":    appt.TotalAmountCents,
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCreated,
		Payload:       payload,
	})
}
