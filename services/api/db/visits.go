package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/02loveslollipop/patio/internal/mileage"
)

// Execution statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusFinalized  = "finalized"
	StatusCancelled  = "cancelled"
)

// Execution is a row of patio.service_executions.
type Execution struct {
	ID         int64      `json:"id"`
	VehicleID  int64      `json:"vehicle_id"`
	BoxID      *int64     `json:"box_id,omitempty"`
	OdometerKM *int64     `json:"odometer_km,omitempty"`
	Status     string     `json:"status"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// VisitEdit is one corrected row submitted through adjust history.
type VisitEdit struct {
	ExecutionID int64     `json:"execution_id" binding:"required"`
	FinishedAt  time.Time `json:"finished_at" binding:"required"`
	OdometerKM  int64     `json:"odometer_km" binding:"required,gt=0"`
}

const finalizedVisitsSQL = `
    SELECT id, finished_at, odometer_km
    FROM patio.service_executions
    WHERE vehicle_id = $1
      AND status = 'finalized'
      AND odometer_km > 0
      AND finished_at IS NOT NULL
    ORDER BY finished_at ASC, id ASC
`

// FinalizedVisits returns the vehicle's finalized visits ordered by finish
// time, the input the mileage estimator expects.
func (q *Queries) FinalizedVisits(ctx context.Context, vehicleID int64) ([]mileage.Visit, error) {
	rows, err := q.db.Query(ctx, finalizedVisitsSQL, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := make([]mileage.Visit, 0)
	for rows.Next() {
		var v mileage.Visit
		if err := rows.Scan(&v.ID, &v.FinishedAt, &v.OdometerKM); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

const executionForUpdateSQL = `
    SELECT id, vehicle_id, box_id, odometer_km, status, finished_at
    FROM patio.service_executions
    WHERE id = $1
    FOR UPDATE
`

// GetExecutionForUpdate loads and row-locks one execution.
func (q *Queries) GetExecutionForUpdate(ctx context.Context, id int64) (Execution, error) {
	var e Execution
	err := q.db.QueryRow(ctx, executionForUpdateSQL, id).Scan(
		&e.ID,
		&e.VehicleID,
		&e.BoxID,
		&e.OdometerKM,
		&e.Status,
		&e.FinishedAt,
	)
	if err != nil {
		return Execution{}, notFound(err, "execution", id)
	}
	return e, nil
}

const finalizeExecutionSQL = `
    UPDATE patio.service_executions
    SET status = 'finalized', finished_at = $2, finished_by = $3
    WHERE id = $1
`

// FinalizeExecution marks an execution finished by userID at the given time.
func (q *Queries) FinalizeExecution(ctx context.Context, id, userID int64, at time.Time) error {
	tag, err := q.db.Exec(ctx, finalizeExecutionSQL, id, at, userID)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution %d: %w", id, ErrNotFound)
	}
	return nil
}

const releaseBoxSQL = `UPDATE patio.boxes SET occupied = false WHERE id = $1`

// ReleaseBox frees a service box.
func (q *Queries) ReleaseBox(ctx context.Context, boxID int64) error {
	if _, err := q.db.Exec(ctx, releaseBoxSQL, boxID); err != nil {
		return fmt.Errorf("release box %d: %w", boxID, err)
	}
	return nil
}

const cancelAtOdometerSQL = `
    UPDATE patio.service_executions
    SET status = 'cancelled'
    WHERE vehicle_id = $1 AND odometer_km = $2 AND status = 'finalized'
`

// CancelVisitsAtOdometer cancels every finalized visit of the vehicle with
// the given reading and reports how many were touched.
func (q *Queries) CancelVisitsAtOdometer(ctx context.Context, vehicleID, odometerKM int64) (int64, error) {
	tag, err := q.db.Exec(ctx, cancelAtOdometerSQL, vehicleID, odometerKM)
	if err != nil {
		return 0, fmt.Errorf("cancel visits: %w", err)
	}
	return tag.RowsAffected(), nil
}

const updateVisitSQL = `
    UPDATE patio.service_executions
    SET finished_at = $3, odometer_km = $4
    WHERE id = $1 AND vehicle_id = $2
`

// UpdateVisits writes corrected rows in a single batch.
func (q *Queries) UpdateVisits(ctx context.Context, vehicleID int64, edits []VisitEdit) error {
	if len(edits) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range edits {
		batch.Queue(updateVisitSQL, e.ExecutionID, vehicleID, e.FinishedAt, e.OdometerKM)
	}

	res := q.db.SendBatch(ctx, batch)
	defer res.Close()

	for _, e := range edits {
		tag, err := res.Exec()
		if err != nil {
			return fmt.Errorf("update execution %d: %w", e.ExecutionID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("execution %d: %w", e.ExecutionID, ErrNotFound)
		}
	}

	return nil
}
