package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/garageboard/garageboard/services/appointment-service/internal/lifecycle"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
	"github.com/garageboard/garageboard/services/appointment-service/internal/outbox"
)

// Insert stores a freshly created appointment and its creation event in one
// transaction.
func (r *Repository) Insert(ctx context.Context, appt *model.Appointment) error {
	tx, err := r.beginTenant(ctx, appt.TenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insertAppointment(ctx, tx, appt); err != nil {
		return err
	}
	if err := r.insertCreatedEvent(ctx, tx, appt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get loads one appointment scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID, apptID string) (model.Appointment, error) {
	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`, apptID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, tx.Commit(ctx)
}

// UpdateStatus is the move operation's storage half: one conditional update
// guarded by the version token. The version precondition and the transition
// are both validated against the row read in this same transaction, version
// first; a CAS that still affects zero rows is classified by a follow-up
// read so the caller learns the current state.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, apptID string, to model.Status, expectedVersion int64) (model.Appointment, error) {
	tx, err := r.beginTenant(ctx, tenantID)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var currentStatus string
	var currentVersion int64
	err = tx.QueryRow(ctx, `
		SELECT status, version
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`, apptID, tenantID).Scan(&currentStatus, &currentVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}

	// The version precondition is judged first: a retry of an already
	// applied move must see a version conflict reporting current state,
	// not a transition error against the post-move status.
	if currentVersion != expectedVersion {
		return model.Appointment{}, &model.VersionConflictError{
			CurrentVersion: currentVersion,
			CurrentStatus:  model.Status(currentStatus),
		}
	}
	if !lifecycle.Allowed(model.Status(currentStatus), to) {
		return model.Appointment{}, &model.InvalidTransitionError{
			From: model.Status(currentStatus),
			To:   to,
		}
	}

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND version = $4
		RETURNING `+appointmentColumns+`
	`, apptID, tenantID, string(to), expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows: either the row vanished or the version moved under
		// us. Distinguish with a follow-up read.
		var v int64
		var s string
		err := tx.QueryRow(ctx, `
			SELECT status, version
			FROM appointments
			WHERE id = $1 AND tenant_id = $2
		`, apptID, tenantID).Scan(&s, &v)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, model.ErrNotFound
		}
		if err != nil {
			return model.Appointment{}, err
		}
		return model.Appointment{}, &model.VersionConflictError{
			CurrentVersion: v,
			CurrentStatus:  model.Status(s),
		}
	}
	if err != nil {
		return model.Appointment{}, err
	}

	if err := r.insertStatusChangedEvent(ctx, tx, &appt, model.Status(currentStatus)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *Repository) insertStatusChangedEvent(ctx context.Context, tx pgx.Tx, appt *model.Appointment, from model.Status) error {
	// terminal tells consumers the appointment reached a final state, so
	// they can tear down reminders without knowing the transition table.
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"tenant_id":      appt.TenantID,
		"from_status":    from,
		"to_status":      appt.Status,
		"terminal":       lifecycle.Terminal(appt.Status),
		"version":        appt.Version,
		"moved_at":       appt.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentStatusChanged,
		Payload:       payload,
	})
}
