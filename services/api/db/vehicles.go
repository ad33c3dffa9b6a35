package db

import (
	"context"
	"fmt"
	"time"

	"github.com/02loveslollipop/patio/internal/plate"
)

// Vehicle is a row of patio.vehicles.
type Vehicle struct {
	ID                   int64      `json:"id"`
	Plate                string     `json:"plate"`
	Model                *string    `json:"model,omitempty"`
	ModelYear            *int32     `json:"model_year,omitempty"`
	Company              *string    `json:"company,omitempty"`
	ClientID             *int64     `json:"client_id,omitempty"`
	DriverName           *string    `json:"driver_name,omitempty"`
	DriverContact        *string    `json:"driver_contact,omitempty"`
	AvgDailyKM           *float64   `json:"avg_daily_km"`
	ProactiveContactDate *time.Time `json:"proactive_contact_date,omitempty"`
}

const getVehicleSQL = `
    SELECT id, plate, model, model_year, company, client_id, driver_name, driver_contact,
           avg_daily_km, proactive_contact_date
    FROM patio.vehicles
    WHERE id = $1
`

// GetVehicle returns one vehicle or ErrNotFound.
func (q *Queries) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	var v Vehicle
	err := q.db.QueryRow(ctx, getVehicleSQL, id).Scan(
		&v.ID,
		&v.Plate,
		&v.Model,
		&v.ModelYear,
		&v.Company,
		&v.ClientID,
		&v.DriverName,
		&v.DriverContact,
		&v.AvgDailyKM,
		&v.ProactiveContactDate,
	)
	if err != nil {
		return Vehicle{}, notFound(err, "vehicle", id)
	}
	return v, nil
}

const setAverageSQL = `UPDATE patio.vehicles SET avg_daily_km = $1 WHERE id = $2`

// SetAverageDailyKM overwrites the stored average. A nil avg stores NULL.
func (q *Queries) SetAverageDailyKM(ctx context.Context, vehicleID int64, avg *float64) error {
	tag, err := q.db.Exec(ctx, setAverageSQL, avg, vehicleID)
	if err != nil {
		return fmt.Errorf("update avg_daily_km: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d: %w", vehicleID, ErrNotFound)
	}
	return nil
}

const markContactedSQL = `UPDATE patio.vehicles SET proactive_contact_date = $1 WHERE id = $2`

// MarkContacted stamps the proactive contact date. Only the calendar date of
// day is stored.
func (q *Queries) MarkContacted(ctx context.Context, vehicleID int64, day time.Time) error {
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	tag, err := q.db.Exec(ctx, markContactedSQL, date, vehicleID)
	if err != nil {
		return fmt.Errorf("update proactive_contact_date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d: %w", vehicleID, ErrNotFound)
	}
	return nil
}

const vehiclePlatesSQL = `SELECT id, plate FROM patio.vehicles WHERE plate IS NOT NULL ORDER BY id`

// VehiclePlates lists id and plate for every vehicle.
func (q *Queries) VehiclePlates(ctx context.Context) ([]plate.Vehicle, error) {
	rows, err := q.db.Query(ctx, vehiclePlatesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]plate.Vehicle, 0)
	for rows.Next() {
		var v plate.Vehicle
		if err := rows.Scan(&v.ID, &v.Plate); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const coalesceVehicleSQL = `
    UPDATE patio.vehicles AS n
    SET model = COALESCE(n.model, o.model),
        model_year = COALESCE(n.model_year, o.model_year),
        company = COALESCE(n.company, o.company),
        client_id = COALESCE(n.client_id, o.client_id),
        driver_name = COALESCE(n.driver_name, o.driver_name),
        driver_contact = COALESCE(n.driver_contact, o.driver_contact),
        proactive_contact_date = COALESCE(n.proactive_contact_date, o.proactive_contact_date)
    FROM patio.vehicles AS o
    WHERE n.id = $1 AND o.id = $2
`

const moveExecutionsSQL = `UPDATE patio.service_executions SET vehicle_id = $1 WHERE vehicle_id = $2`

const deleteVehicleSQL = `DELETE FROM patio.vehicles WHERE id = $1`

// MergeVehicles folds oldID into newID: descriptive fields missing on the new
// vehicle are copied from the old one, executions move over and the old row
// is deleted. Callers run it inside a transaction.
func (q *Queries) MergeVehicles(ctx context.Context, oldID, newID int64) error {
	tag, err := q.db.Exec(ctx, coalesceVehicleSQL, newID, oldID)
	if err != nil {
		return fmt.Errorf("coalesce vehicle fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicles %d/%d: %w", oldID, newID, ErrNotFound)
	}
	if _, err := q.db.Exec(ctx, moveExecutionsSQL, newID, oldID); err != nil {
		return fmt.Errorf("move executions: %w", err)
	}
	if _, err := q.db.Exec(ctx, deleteVehicleSQL, oldID); err != nil {
		return fmt.Errorf("delete vehicle %d: %w", oldID, err)
	}
	return nil
}
