package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/garageboard/garageboard/libs/httpx"
	"github.com/garageboard/garageboard/services/appointment-service/internal/appointments"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
	"github.com/garageboard/garageboard/services/appointment-service/internal/tenant"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	HeaderIdempotencyStatus = "X-Idempotency-Status"
)

// AppointmentService is the mutation core consumed by the HTTP layer.
type AppointmentService interface {
	Create(ctx context.Context, tenantID, idemKey string, p appointments.CreateParams) (appointments.CreateResult, error)
	Move(ctx context.Context, tenantID, apptID, newStatus string, expectedVersion int64) (model.Appointment, error)
}

type AppointmentHandler struct {
	svc    AppointmentService
	logger *slog.Logger
}

func NewAppointmentHandler(svc AppointmentService, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	CustomerID     string   `json:"customer_id"`
	VehicleID      string   `json:"vehicle_id"`
	ServiceCodes   []string `json:"service_codes"`
	ScheduledStart string   `json:"scheduled_start"`
	ScheduledEnd   string   `json:"scheduled_end"`
	TotalAmount    int64    `json:"total_amount"`
}

type moveAppointmentRequest struct {
	NewStatus       string `json:"new_status"`
	ExpectedVersion int64  `json:"expected_version"`
}

type moveAppointmentResponse struct {
	ID      string       `json:"id"`
	Status  model.Status `json:"status"`
	Version int64        `json:"version"`
}

type versionConflictData struct {
	CurrentVersion int64        `json:"current_version"`
	CurrentStatus  model.Status `json:"current_status"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "tenant_context_missing", "no tenant resolved for request")
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}

	start, err := time.Parse(time.RFC3339, req.ScheduledStart)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "scheduled_start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.ScheduledEnd)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "scheduled_end must be RFC3339")
		return
	}

	params := appointments.CreateParams{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		VehicleID:        strings.TrimSpace(req.VehicleID),
		ServiceCodes:     req.ServiceCodes,
		ScheduledStart:   start.UTC(),
		ScheduledEnd:     end.UTC(),
		TotalAmountCents: req.TotalAmount,
	}
	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))

	res, err := h.svc.Create(r.Context(), tenantID, idemKey, params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.Replayed {
		// Replays always answer 200; only the first physical creation
		// gets the stored 201.
		w.Header().Set(HeaderIdempotencyStatus, "replayed")
		httpx.WriteRawData(w, r, http.StatusOK, res.ReplayBody)
		return
	}
	if idemKey != "" {
		w.Header().Set(HeaderIdempotencyStatus, "created")
	}
	httpx.WriteData(w, r, http.StatusCreated, res.Appointment)
}

func (h *AppointmentHandler) Move(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "tenant_context_missing", "no tenant resolved for request")
		return
	}
	apptID := strings.TrimSpace(r.PathValue("id"))

	var req moveAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}

	appt, err := h.svc.Move(r.Context(), tenantID, apptID, strings.TrimSpace(req.NewStatus), req.ExpectedVersion)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.WriteData(w, r, http.StatusOK, moveAppointmentResponse{
		ID:      appt.ID,
		Status:  appt.Status,
		Version: appt.Version,
	})
}

// writeError maps domain failures onto the wire taxonomy. Nothing is
// swallowed or retried here; retry policy belongs to the caller.
func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	var invalid *model.InvalidTransitionError
	var conflict *model.VersionConflictError

	switch {
	case errors.Is(err, tenant.ErrMissing):
		httpx.WriteError(w, r, http.StatusBadRequest, "tenant_context_missing", "no tenant resolved for request")
	case errors.As(err, &verr):
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", verr.Detail)
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "not_found", "appointment not found")
	case errors.As(err, &invalid):
		httpx.WriteError(w, r, http.StatusConflict, "invalid_transition", invalid.Error())
	case errors.As(err, &conflict):
		httpx.WriteErrorWithData(w, r, http.StatusConflict, "version_conflict", conflict.Error(), versionConflictData{
			CurrentVersion: conflict.CurrentVersion,
			CurrentStatus:  conflict.CurrentStatus,
		})
	case errors.Is(err, model.ErrFingerprintMismatch):
		httpx.WriteError(w, r, http.StatusConflict, "idempotency_key_conflict", "idempotency key was already used for a different request")
	default:
		h.logger.Error("appointment operation failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "unexpected storage failure")
	}
}
