// Package appointments implements the two mutation operations of the booking
// core: idempotent creation and optimistic-concurrency status moves. All
// coordination lives in the storage layer; this package validates inputs,
// shapes results, and never holds cross-request state.
package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/garageboard/garageboard/services/appointment-service/internal/idempotency"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
	"github.com/garageboard/garageboard/services/appointment-service/internal/tenant"
)

// Replay is a previously stored response for an idempotency key. Status is
// the code stored at finalization (201 for creates); the HTTP layer still
// answers replays with 200, so a non-zero Status doubles as the
// finalized marker distinguishing a completed claim from an interrupted one.
type Replay struct {
	Status int
	Body   []byte
}

// Store is the durable appointment + idempotency storage. Every method is a
// single atomic unit: it either fully happens or leaves no trace, which is
// what makes client-side retry safe.
type Store interface {
	// Insert stores a new appointment. The appointment's version must be 1.
	Insert(ctx context.Context, appt *model.Appointment) error

	// InsertIdempotent atomically claims (tenant, key), inserts the
	// appointment, and finalizes the stored response, all in one
	// transaction. When the key is already claimed with the same
	// fingerprint it returns the stored response instead of writing
	// anything. A claimed key with a different fingerprint returns
	// model.ErrFingerprintMismatch.
	InsertIdempotent(ctx context.Context, appt *model.Appointment, key, fingerprint string, responseStatus int, responseBody []byte) (*Replay, error)

	// UpdateStatus performs the compare-and-swap move. It validates the
	// transition against the currently stored status inside the same
	// transaction as the update and returns the updated appointment,
	// model.ErrNotFound, *model.InvalidTransitionError, or
	// *model.VersionConflictError.
	UpdateStatus(ctx context.Context, tenantID, apptID string, to model.Status, expectedVersion int64) (model.Appointment, error)
}

// CreateParams is the normalized create payload. Its field order is fixed, so
// its JSON form doubles as the fingerprint input.
type CreateParams struct {
	CustomerID       string    `json:"customer_id"`
	VehicleID        string    `json:"vehicle_id"`
	ServiceCodes     []string  `json:"service_codes"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	ScheduledEnd     time.Time `json:"scheduled_end"`
	TotalAmountCents int64     `json:"total_amount"`
}

func (p CreateParams) validate() error {
	if p.CustomerID == "" {
		return &model.ValidationError{Detail: "customer_id is required"}
	}
	if p.VehicleID == "" {
		return &model.ValidationError{Detail: "vehicle_id is required"}
	}
	if len(p.ServiceCodes) == 0 {
		return &model.ValidationError{Detail: "at least one service code is required"}
	}
	for _, code := range p.ServiceCodes {
		if code == "" {
			return &model.ValidationError{Detail: "service codes must be non-empty"}
		}
	}
	if p.ScheduledStart.IsZero() || p.ScheduledEnd.IsZero() {
		return &model.ValidationError{Detail: "scheduled_start and scheduled_end are required"}
	}
	if !p.ScheduledStart.Before(p.ScheduledEnd) {
		return &model.ValidationError{Detail: "scheduled_start must be before scheduled_end"}
	}
	if p.TotalAmountCents < 0 {
		return &model.ValidationError{Detail: "total_amount must be non-negative"}
	}
	return nil
}

// CreateResult is the outcome of Create. When Replayed is true, ReplayBody
// holds the response stored by the first call and Appointment is zero.
type CreateResult struct {
	Appointment model.Appointment
	Replayed    bool
	ReplayBody  []byte
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Create books a new appointment. With an idempotency key, repeated calls
// for the same payload return the first response; concurrent duplicates race
// safely at the storage layer and produce exactly one appointment.
func (s *Service) Create(ctx context.Context, tenantID, idemKey string, p CreateParams) (CreateResult, error) {
	if tenantID == "" {
		return CreateResult{}, tenant.ErrMissing
	}
	if err := p.validate(); err != nil {
		return CreateResult{}, err
	}

	now := s.now().UTC()
	appt := model.Appointment{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		CustomerID:       p.CustomerID,
		VehicleID:        p.VehicleID,
		Status:           model.StatusScheduled,
		Version:          1,
		ScheduledStart:   p.ScheduledStart.UTC(),
		ScheduledEnd:     p.ScheduledEnd.UTC(),
		ServiceCodes:     p.ServiceCodes,
		TotalAmountCents: p.TotalAmountCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if idemKey == "" {
		if err := s.store.Insert(ctx, &appt); err != nil {
			return CreateResult{}, fmt.Errorf("insert appointment: %w", err)
		}
		s.logger.Info("appointment created",
			"tenant_id", tenantID,
			"appointment_id", appt.ID,
		)
		return CreateResult{Appointment: appt}, nil
	}

	fingerprint, err := idempotency.Fingerprint(p)
	if err != nil {
		return CreateResult{}, err
	}
	body, err := json.Marshal(appt)
	if err != nil {
		return CreateResult{}, fmt.Errorf("encode stored response: %w", err)
	}

	replay, err := s.store.InsertIdempotent(ctx, &appt, idemKey, fingerprint, http.StatusCreated, body)
	if err != nil {
		return CreateResult{}, err
	}
	if replay != nil {
		s.logger.Info("appointment create replayed",
			"tenant_id", tenantID,
			"idempotency_key", idemKey,
		)
		return CreateResult{Replayed: true, ReplayBody: replay.Body}, nil
	}

	s.logger.Info("appointment created",
		"tenant_id", tenantID,
		"appointment_id", appt.ID,
		"idempotency_key", idemKey,
	)
	return CreateResult{Appointment: appt}, nil
}

// Move transitions an appointment to a new lifecycle status guarded by the
// version token. Moves carry no idempotency key: a retry of an already
// applied move sees a version conflict and must re-read current state.
func (s *Service) Move(ctx context.Context, tenantID, apptID, newStatus string, expectedVersion int64) (model.Appointment, error) {
	if tenantID == "" {
		return model.Appointment{}, tenant.ErrMissing
	}
	if apptID == "" {
		return model.Appointment{}, &model.ValidationError{Detail: "appointment id is required"}
	}
	to, ok := model.ParseStatus(newStatus)
	if !ok {
		return model.Appointment{}, &model.ValidationError{Detail: "unknown status " + newStatus}
	}
	if expectedVersion < 1 {
		return model.Appointment{}, &model.ValidationError{Detail: "expected_version must be >= 1"}
	}

	appt, err := s.store.UpdateStatus(ctx, tenantID, apptID, to, expectedVersion)
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment moved",
		"tenant_id", tenantID,
		"appointment_id", appt.ID,
		"status", appt.Status,
		"version", appt.Version,
	)
	return appt, nil
}
