package model

import "time"

// Status is the lifecycle state of an appointment on the shop status board.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// Statuses lists every lifecycle state in board-column order.
var Statuses = []Status{
	StatusScheduled,
	StatusInProgress,
	StatusReady,
	StatusCompleted,
	StatusCanceled,
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusScheduled, StatusInProgress, StatusReady, StatusCompleted, StatusCanceled:
		return Status(s), true
	}
	return "", false
}

// Appointment is a single service booking. Version is the optimistic
// concurrency token: it starts at 1 and every successful status mutation
// increments it by exactly 1.
type Appointment struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	CustomerID       string    `json:"customer_id"`
	VehicleID        string    `json:"vehicle_id"`
	Status           Status    `json:"status"`
	Version          int64     `json:"version"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	ScheduledEnd     time.Time `json:"scheduled_end"`
	ServiceCodes     []string  `json:"service_codes"`
	TotalAmountCents int64     `json:"total_amount"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
