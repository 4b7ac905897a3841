package appointments

import (
	"context"
	"sync"

	"github.com/garageboard/garageboard/services/appointment-service/internal/lifecycle"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
)

// memStore is a small in-memory Store used in unit tests. A single mutex
// stands in for the storage engine's transaction atomicity, so the
// conditional-write semantics match the SQL implementation.
type memStore struct {
	mu    sync.Mutex
	appts map[string]map[string]*model.Appointment // tenant -> id -> appointment
	idem  map[string]*memIdemRecord                // tenant \x00 key
}

type memIdemRecord struct {
	fingerprint string
	status      int
	body        []byte
}

func newMemStore() *memStore {
	return &memStore{
		appts: map[string]map[string]*model.Appointment{},
		idem:  map[string]*memIdemRecord{},
	}
}

func (s *memStore) Insert(_ context.Context, appt *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(appt)
	return nil
}

func (s *memStore) InsertIdempotent(_ context.Context, appt *model.Appointment, key, fingerprint string, responseStatus int, responseBody []byte) (*Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := appt.TenantID + "\x00" + key
	if rec, ok := s.idem[idemKey]; ok {
		if rec.fingerprint != fingerprint {
			return nil, model.ErrFingerprintMismatch
		}
		return &Replay{Status: rec.status, Body: rec.body}, nil
	}

	s.idem[idemKey] = &memIdemRecord{
		fingerprint: fingerprint,
		status:      responseStatus,
		body:        responseBody,
	}
	s.insertLocked(appt)
	return nil, nil
}

func (s *memStore) UpdateStatus(_ context.Context, tenantID, apptID string, to model.Status, expectedVersion int64) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt := s.appts[tenantID][apptID]
	if appt == nil {
		return model.Appointment{}, model.ErrNotFound
	}
	if appt.Version != expectedVersion {
		return model.Appointment{}, &model.VersionConflictError{
			CurrentVersion: appt.Version,
			CurrentStatus:  appt.Status,
		}
	}
	if !lifecycle.Allowed(appt.Status, to) {
		return model.Appointment{}, &model.InvalidTransitionError{From: appt.Status, To: to}
	}

	appt.Status = to
	appt.Version++
	updated := *appt
	return updated, nil
}

func (s *memStore) insertLocked(appt *model.Appointment) {
	byID := s.appts[appt.TenantID]
	if byID == nil {
		byID = map[string]*model.Appointment{}
		s.appts[appt.TenantID] = byID
	}
	stored := *appt
	byID[appt.ID] = &stored
}

func (s *memStore) count(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts[tenantID])
}

func (s *memStore) get(tenantID, apptID string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt := s.appts[tenantID][apptID]
	if appt == nil {
		return model.Appointment{}, false
	}
	return *appt, true
}
