package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/garageboard/garageboard/services/appointment-service/internal/appointments"
	"github.com/garageboard/garageboard/services/appointment-service/internal/board"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
	"github.com/garageboard/garageboard/services/appointment-service/internal/tenant"
)

const testTenant = "0b231b9a-98a3-4f36-a7a1-8bb0c9f24d6e"

type fakeApptService struct {
	createFn func(ctx context.Context, tenantID, idemKey string, p appointments.CreateParams) (appointments.CreateResult, error)
	moveFn   func(ctx context.Context, tenantID, apptID, newStatus string, expectedVersion int64) (model.Appointment, error)
}

func (f *fakeApptService) Create(ctx context.Context, tenantID, idemKey string, p appointments.CreateParams) (appointments.CreateResult, error) {
	return f.createFn(ctx, tenantID, idemKey, p)
}

func (f *fakeApptService) Move(ctx context.Context, tenantID, apptID, newStatus string, expectedVersion int64) (model.Appointment, error) {
	return f.moveFn(ctx, tenantID, apptID, newStatus, expectedVersion)
}

type fakeBoardReader struct {
	boardFn func(ctx context.Context, tenantID string, day time.Time) (board.Board, error)
	statsFn func(ctx context.Context, tenantID string, day time.Time) (board.Stats, error)
}

func (f *fakeBoardReader) Board(ctx context.Context, tenantID string, day time.Time) (board.Board, error) {
	return f.boardFn(ctx, tenantID, day)
}

func (f *fakeBoardReader) Stats(ctx context.Context, tenantID string, day time.Time) (board.Stats, error) {
	return f.statsFn(ctx, tenantID, day)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMux(svc AppointmentService, reader BoardReader) http.Handler {
	logger := testLogger()
	appt := NewAppointmentHandler(svc, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/appointments", appt.Create)
	mux.HandleFunc("POST /api/v1/appointments/{id}/move", appt.Move)
	if reader != nil {
		b := NewBoardHandler(reader, logger)
		mux.HandleFunc("GET /api/v1/appointments/board", b.Board)
		mux.HandleFunc("GET /api/v1/dashboard/stats", b.Stats)
	}
	return tenant.Require(mux)
}

type wireError struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type wireEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []wireError     `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) wireEnvelope {
	t.Helper()
	var env wireEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func createBody() string {
	return `{
		"customer_id": "c-1",
		"vehicle_id": "v-1",
		"service_codes": ["OIL_CHANGE"],
		"scheduled_start": "2026-09-01T09:00:00Z",
		"scheduled_end": "2026-09-01T10:00:00Z",
		"total_amount": 8900
	}`
}

func TestCreateReturnsCreated(t *testing.T) {
	svc := &fakeApptService{
		createFn: func(_ context.Context, tenantID, idemKey string, p appointments.CreateParams) (appointments.CreateResult, error) {
			if tenantID != testTenant {
				t.Fatalf("tenant = %q, want %q", tenantID, testTenant)
			}
			if idemKey != "key-1" {
				t.Fatalf("idempotency key = %q, want key-1", idemKey)
			}
			return appointments.CreateResult{Appointment: model.Appointment{
				ID:         "a-1",
				TenantID:   tenantID,
				CustomerID: p.CustomerID,
				Status:     model.StatusScheduled,
				Version:    1,
			}}, nil
		},
	}
	h := newTestMux(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody()))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(HeaderIdempotencyStatus); got != "created" {
		t.Fatalf("%s = %q, want created", HeaderIdempotencyStatus, got)
	}

	var appt model.Appointment
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &appt); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if appt.ID != "a-1" || appt.Version != 1 || appt.Status != model.StatusScheduled {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
}

func TestCreateReplayReturnsStoredResponse(t *testing.T) {
	stored := `{"id":"a-1","status":"scheduled","version":1}`
	svc := &fakeApptService{
		createFn: func(context.Context, string, string, appointments.CreateParams) (appointments.CreateResult, error) {
			return appointments.CreateResult{Replayed: true, ReplayBody: []byte(stored)}, nil
		},
	}
	h := newTestMux(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody()))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(HeaderIdempotencyStatus); got != "replayed" {
		t.Fatalf("%s = %q, want replayed", HeaderIdempotencyStatus, got)
	}
	env := decodeEnvelope(t, rec)
	if string(env.Data) != stored {
		t.Fatalf("data = %s, want %s", env.Data, stored)
	}
}

func TestCreateFingerprintMismatch(t *testing.T) {
	svc := &fakeApptService{
		createFn: func(context.Context, string, string, appointments.CreateParams) (appointments.CreateResult, error) {
			return appointments.CreateResult{}, model.ErrFingerprintMismatch
		},
	}
	h := newTestMux(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody()))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "idempotency_key_conflict" {
		t.Fatalf("errors = %+v, want idempotency_key_conflict", env.Errors)
	}
}

func TestCreateRejectsMalformedDates(t *testing.T) {
	svc := &fakeApptService{
		createFn: func(context.Context, string, string, appointments.CreateParams) (appointments.CreateResult, error) {
			t.Fatal("service must not be called")
			return appointments.CreateResult{}, nil
		},
	}
	h := newTestMux(svc, nil)

	body := `{"customer_id":"c-1","vehicle_id":"v-1","service_codes":["X"],"scheduled_start":"tomorrow","scheduled_end":"2026-09-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "validation_error" {
		t.Fatalf("errors = %+v, want validation_error", env.Errors)
	}
}

func TestCreateRejectsMissingTenantHeader(t *testing.T) {
	h := newTestMux(&fakeApptService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "tenant_context_missing" {
		t.Fatalf("errors = %+v, want tenant_context_missing", env.Errors)
	}
}

func TestCreateRejectsNonUUIDTenantHeader(t *testing.T) {
	h := newTestMux(&fakeApptService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody()))
	req.Header.Set(tenant.HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMoveReturnsUpdatedVersion(t *testing.T) {
	svc := &fakeApptService{
		moveFn: func(_ context.Context, tenantID, apptID, newStatus string, expectedVersion int64) (model.Appointment, error) {
			if apptID != "a-1" {
				t.Fatalf("appointment id = %q, want a-1", apptID)
			}
			if newStatus != "in_progress" || expectedVersion != 1 {
				t.Fatalf("move args = (%q, %d), want (in_progress, 1)", newStatus, expectedVersion)
			}
			return model.Appointment{ID: apptID, TenantID: tenantID, Status: model.StatusInProgress, Version: 2}, nil
		},
	}
	h := newTestMux(svc, nil)

	body := `{"new_status":"in_progress","expected_version":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/a-1/move", strings.NewReader(body))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp moveAppointmentResponse
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.Version != 2 || resp.Status != model.StatusInProgress {
		t.Fatalf("response = %+v, want version 2 in_progress", resp)
	}
}

func TestMoveVersionConflictCarriesCurrentState(t *testing.T) {
	svc := &fakeApptService{
		moveFn: func(context.Context, string, string, string, int64) (model.Appointment, error) {
			return model.Appointment{}, &model.VersionConflictError{CurrentVersion: 3, CurrentStatus: model.StatusReady}
		},
	}
	h := newTestMux(svc, nil)

	body := `{"new_status":"completed","expected_version":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/a-1/move", strings.NewReader(body))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "version_conflict" {
		t.Fatalf("errors = %+v, want version_conflict", env.Errors)
	}
	var data versionConflictData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode conflict data: %v", err)
	}
	if data.CurrentVersion != 3 || data.CurrentStatus != model.StatusReady {
		t.Fatalf("conflict data = %+v, want version 3 ready", data)
	}
}

func TestMoveInvalidTransition(t *testing.T) {
	svc := &fakeApptService{
		moveFn: func(context.Context, string, string, string, int64) (model.Appointment, error) {
			return model.Appointment{}, &model.InvalidTransitionError{From: model.StatusInProgress, To: model.StatusCompleted}
		},
	}
	h := newTestMux(svc, nil)

	body := `{"new_status":"completed","expected_version":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/a-1/move", strings.NewReader(body))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "invalid_transition" {
		t.Fatalf("errors = %+v, want invalid_transition", env.Errors)
	}
}

func TestMoveNotFound(t *testing.T) {
	svc := &fakeApptService{
		moveFn: func(context.Context, string, string, string, int64) (model.Appointment, error) {
			return model.Appointment{}, model.ErrNotFound
		},
	}
	h := newTestMux(svc, nil)

	body := `{"new_status":"in_progress","expected_version":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/missing/move", strings.NewReader(body))
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBoardPassesParsedDate(t *testing.T) {
	var gotDay time.Time
	reader := &fakeBoardReader{
		boardFn: func(_ context.Context, tenantID string, day time.Time) (board.Board, error) {
			if tenantID != testTenant {
				t.Fatalf("tenant = %q, want %q", tenantID, testTenant)
			}
			gotDay = day
			return board.Board{Date: "2026-09-01", Columns: map[string][]board.Card{}}, nil
		},
	}
	h := newTestMux(&fakeApptService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/board?date=2026-09-01", nil)
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	want := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !gotDay.Equal(want) {
		t.Fatalf("day = %v, want %v", gotDay, want)
	}
}

func TestBoardRejectsMalformedDate(t *testing.T) {
	reader := &fakeBoardReader{
		boardFn: func(context.Context, string, time.Time) (board.Board, error) {
			t.Fatal("reader must not be called")
			return board.Board{}, nil
		},
	}
	h := newTestMux(&fakeApptService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/board?date=09-01-2026", nil)
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Code != "validation_error" {
		t.Fatalf("errors = %+v, want validation_error", env.Errors)
	}
}

func TestStatsReturnsAggregates(t *testing.T) {
	reader := &fakeBoardReader{
		statsFn: func(context.Context, string, time.Time) (board.Stats, error) {
			return board.Stats{
				Date:         "2026-09-01",
				TotalCount:   4,
				StatusCounts: map[string]int{"scheduled": 2, "completed": 2},
				RevenueCents: 17800,
			}, nil
		},
	}
	h := newTestMux(&fakeApptService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats?date=2026-09-01", nil)
	req.Header.Set(tenant.HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats board.Stats
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if stats.TotalCount != 4 || stats.RevenueCents != 17800 {
		t.Fatalf("stats = %+v", stats)
	}
}
