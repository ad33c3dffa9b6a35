package db

import (
	"context"

	"github.com/02loveslollipop/patio/internal/mileage"
)

// ProactiveCandidate is a vehicle with an estimate, no contact recorded yet
// and at least one finalized visit with a reading.
type ProactiveCandidate struct {
	VehicleID      int64         `json:"vehicle_id"`
	Plate          string        `json:"plate"`
	Model          *string       `json:"model,omitempty"`
	Company        *string       `json:"company,omitempty"`
	DriverName     *string       `json:"driver_name,omitempty"`
	DriverContact  *string       `json:"driver_contact,omitempty"`
	ManagerName    *string       `json:"fleet_manager_name,omitempty"`
	ManagerContact *string       `json:"fleet_manager_contact,omitempty"`
	AvgDailyKM     float64       `json:"avg_daily_km"`
	LastVisit      mileage.Visit `json:"last_visit"`
}

const proactiveCandidatesSQL = `
    SELECT v.id, v.plate, v.model, v.company, v.driver_name, v.driver_contact,
           c.contact_name, c.contact_phone, v.avg_daily_km,
           last.id, last.finished_at, last.odometer_km
    FROM patio.vehicles v
    LEFT JOIN patio.clients c ON c.id = v.client_id
    JOIN LATERAL (
        SELECT e.id, e.finished_at, e.odometer_km
        FROM patio.service_executions e
        WHERE e.vehicle_id = v.id
          AND e.status = 'finalized'
          AND e.odometer_km IS NOT NULL
          AND e.finished_at IS NOT NULL
        ORDER BY e.finished_at DESC, e.id DESC
        LIMIT 1
    ) last ON true
    WHERE v.avg_daily_km > 0
      AND v.proactive_contact_date IS NULL
    ORDER BY v.id
`

// ProactiveCandidates lists vehicles eligible for the proactive contact list.
func (q *Queries) ProactiveCandidates(ctx context.Context) ([]ProactiveCandidate, error) {
	rows, err := q.db.Query(ctx, proactiveCandidatesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ProactiveCandidate, 0)
	for rows.Next() {
		var c ProactiveCandidate
		if err := rows.Scan(
			&c.VehicleID,
			&c.Plate,
			&c.Model,
			&c.Company,
			&c.DriverName,
			&c.DriverContact,
			&c.ManagerName,
			&c.ManagerContact,
			&c.AvgDailyKM,
			&c.LastVisit.ID,
			&c.LastVisit.FinishedAt,
			&c.LastVisit.OdometerKM,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
