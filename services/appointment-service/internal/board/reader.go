// Package board builds the admin status board and dashboard aggregates. It
// is a pure read path: plain read-committed queries, no locks, reflecting
// whatever mutations committed before the read began.
package board

import (
	"context"
	"time"

	"github.com/garageboard/garageboard/libs/db"
	"github.com/garageboard/garageboard/services/appointment-service/internal/model"
)

// Card is one appointment on the board, denormalized with the customer and
// vehicle summaries the admin UI renders.
type Card struct {
	ID               string    `json:"id"`
	CustomerID       string    `json:"customer_id"`
	VehicleID        string    `json:"vehicle_id"`
	Status           string    `json:"status"`
	Version          int64     `json:"version"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	ScheduledEnd     time.Time `json:"scheduled_end"`
	ServiceCodes     []string  `json:"service_codes"`
	TotalAmountCents int64     `json:"total_amount"`
	CustomerName     string    `json:"customer_name"`
	CustomerPhone    string    `json:"customer_phone"`
	VehicleMake      string    `json:"vehicle_make"`
	VehicleModel     string    `json:"vehicle_model"`
	VehiclePlate     string    `json:"vehicle_plate"`
}

// Board groups a day's appointments into one column per lifecycle status.
// Every status column is present, empty or not.
type Board struct {
	Date    string            `json:"date"`
	Columns map[string][]Card `json:"columns"`
}

type Stats struct {
	Date         string         `json:"date"`
	TotalCount   int            `json:"total_count"`
	StatusCounts map[string]int `json:"status_counts"`
	RevenueCents int64          `json:"revenue"`
}

type Reader struct {
	pool *db.Pool
}

func NewReader(pool *db.Pool) *Reader {
	return &Reader{pool: pool}
}

// dayWindow returns the half-open UTC range covering the board date.
func dayWindow(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func (r *Reader) Board(ctx context.Context, tenantID string, day time.Time) (Board, error) {
	start, end := dayWindow(day)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Board{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		return Board{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT a.id::text, a.customer_id::text, a.vehicle_id::text,
			a.status, a.version, a.scheduled_start, a.scheduled_end,
			a.service_codes, a.total_amount_cents,
			COALESCE(c.name, ''), COALESCE(c.phone, ''),
			COALESCE(v.make, ''), COALESCE(v.model, ''), COALESCE(v.license_plate, '')
		FROM appointments a
		LEFT JOIN customers c ON c.id = a.customer_id AND c.tenant_id = a.tenant_id
		LEFT JOIN vehicles v ON v.id = a.vehicle_id AND v.tenant_id = a.tenant_id
		WHERE a.tenant_id = $1
			AND a.scheduled_start >= $2
			AND a.scheduled_start < $3
		ORDER BY a.scheduled_start ASC, a.id ASC
	`, tenantID, start, end)
	if err != nil {
		return Board{}, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(
			&c.ID,
			&c.CustomerID,
			&c.VehicleID,
			&c.Status,
			&c.Version,
			&c.ScheduledStart,
			&c.ScheduledEnd,
			&c.ServiceCodes,
			&c.TotalAmountCents,
			&c.CustomerName,
			&c.CustomerPhone,
			&c.VehicleMake,
			&c.VehicleModel,
			&c.VehiclePlate,
		); err != nil {
			return Board{}, err
		}
		cards = append(cards, c)
	}
	if rows.Err() != nil {
		return Board{}, rows.Err()
	}
	if err := tx.Commit(ctx); err != nil {
		return Board{}, err
	}

	return Board{
		Date:    start.Format("2006-01-02"),
		Columns: groupCards(cards),
	}, nil
}

func (r *Reader) Stats(ctx context.Context, tenantID string, day time.Time) (Stats, error) {
	start, end := dayWindow(day)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		return Stats{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT status,
			COUNT(*),
			COALESCE(SUM(total_amount_cents) FILTER (WHERE status = 'completed'), 0)
		FROM appointments
		WHERE tenant_id = $1
			AND scheduled_start >= $2
			AND scheduled_start < $3
		GROUP BY status
	`, tenantID, start, end)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := Stats{
		Date:         start.Format("2006-01-02"),
		StatusCounts: map[string]int{},
	}
	for _, s := range model.Statuses {
		stats.StatusCounts[string(s)] = 0
	}
	for rows.Next() {
		var status string
		var count int
		var revenue int64
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return Stats{}, err
		}
		stats.StatusCounts[status] = count
		stats.TotalCount += count
		stats.RevenueCents += revenue
	}
	if rows.Err() != nil {
		return Stats{}, rows.Err()
	}
	if err := tx.Commit(ctx); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func groupCards(cards []Card) map[string][]Card {
	columns := make(map[string][]Card, len(model.Statuses))
	for _, s := range model.Statuses {
		columns[string(s)] = []Card{}
	}
	for _, c := range cards {
		columns[c.Status] = append(columns[c.Status], c)
	}
	return columns
}
