package idempotency

import (
	"testing"
	"time"
)

type payload struct {
	CustomerID       string    `json:"customer_id"`
	VehicleID        string    `json:"vehicle_id"`
	ServiceCodes     []string  `json:"service_codes"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	ScheduledEnd     time.Time `json:"scheduled_end"`
	TotalAmountCents int64     `json:"total_amount"`
}

func TestFingerprintStable(t *testing.T) {
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	p := payload{
		CustomerID:       "c1",
		VehicleID:        "v1",
		ServiceCodes:     []string{"OIL001"},
		ScheduledStart:   start,
		ScheduledEnd:     start.Add(time.Hour),
		TotalAmountCents: 2500,
	}

	a, err := Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a != b {
		t.Fatalf("same payload produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 (64 chars), got %d", len(a))
	}
}

func TestFingerprintDetectsChangedPayload(t *testing.T) {
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	p := payload{CustomerID: "c1", VehicleID: "v1", ScheduledStart: start, ScheduledEnd: start.Add(time.Hour), TotalAmountCents: 2500}
	q := p
	q.TotalAmountCents = 9900

	a, err := Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := Fingerprint(q)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a == b {
		t.Fatal("different payloads must not share a fingerprint")
	}
}

func TestFingerprintServiceCodeOrderMatters(t *testing.T) {
	// service_codes is an ordered set; reordering it is a different request.
	p := payload{CustomerID: "c1", ServiceCodes: []string{"OIL001", "BRK020"}}
	q := payload{CustomerID: "c1", ServiceCodes: []string{"BRK020", "OIL001"}}

	a, _ := Fingerprint(p)
	b, _ := Fingerprint(q)
	if a == b {
		t.Fatal("reordered service codes must change the fingerprint")
	}
}
