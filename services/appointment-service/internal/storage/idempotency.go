package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/garageboard/garageboard/services/appointment-service/internal/appointments"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
)

type idemRecord struct {
	Fingerprint    string
	ResponseStatus int
	ResponseBody   []byte
	ExpiresAt      time.Time
}

// InsertIdempotent claims (tenant, key) and creates the appointment in a
// single transaction. The claim uses an insert-if-absent on the primary key,
// so concurrent identical requests race safely: the loser blocks on the
// winner's row lock, then sees the finalized response and replays it.
func (r *Repository) InsertIdempotent(ctx context.Context, appt *model.Appointment, key, fingerprint string, responseStatus int, responseBody []byte) (*appointments.Replay, error) {
	tx, err := r.beginTenant(ctx, appt.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, found, err := r.selectIdemForUpdate(ctx, tx, appt.TenantID, key)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(r.idemTTL)
	if !found {
		tag, err := tx.Exec(ctx, `
			INSERT INTO appointment_idempotency_keys
				(tenant_id, idempotency_key, request_fingerprint, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		`, appt.TenantID, key, fingerprint, expiresAt)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			// Lost the insert race; the re-select blocks until the
			// winner's transaction commits.
			rec, found, err = r.selectIdemForUpdate(ctx, tx, appt.TenantID, key)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errors.New("idempotency key vanished after conflict")
			}
		}
	}

	if found {
		if time.Now().After(rec.ExpiresAt) {
			// Expired keys are reclaimable: drop the stale row and take
			// over the claim. We hold its lock, so this cannot race.
			if _, err := tx.Exec(ctx, `
				DELETE FROM appointment_idempotency_keys
				WHERE tenant_id = $1 AND idempotency_key = $2
			`, appt.TenantID, key); err != nil {
				return nil, err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO appointment_idempotency_keys
					(tenant_id, idempotency_key, request_fingerprint, expires_at)
				VALUES ($1, $2, $3, $4)
			`, appt.TenantID, key, fingerprint, expiresAt); err != nil {
				return nil, err
			}
		} else {
			if rec.Fingerprint != fingerprint {
				return nil, model.ErrFingerprintMismatch
			}
			if rec.ResponseStatus > 0 {
				return &appointments.Replay{
					Status: rec.ResponseStatus,
					Body:   rec.ResponseBody,
				}, nil
			}
			// Claimed but never finalized: the claim commits together
			// with the appointment, so this only happens after manual
			// intervention. Resume as the winner.
		}
	}

	if err := r.insertAppointment(ctx, tx, appt); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE appointment_idempotency_keys
		SET response_status = $3,
			response_body = $4
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, appt.TenantID, key, responseStatus, responseBody); err != nil {
		return nil, err
	}
	if err := r.insertCreatedEvent(ctx, tx, appt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Repository) selectIdemForUpdate(ctx context.Context, tx pgx.Tx, tenantID, key string) (idemRecord, bool, error) {
	var rec idemRecord
	err := tx.QueryRow(ctx, `
		SELECT request_fingerprint,
			COALESCE(response_status, 0),
			COALESCE(response_body, ''::bytea),
			expires_at
		FROM appointment_idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(&rec.Fingerprint, &rec.ResponseStatus, &rec.ResponseBody, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return idemRecord{}, false, nil
	}
	if err != nil {
		return idemRecord{}, false, err
	}
	return rec, true, nil
}

var _ appointments.Store = (*Repository)(nil)
