package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/patio/internal/mileage"
	apidb "github.com/02loveslollipop/patio/services/api/db"
)

// VehicleIDs lists every vehicle that has at least one service execution.
func VehicleIDs(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	rows, err := pool.Query(ctx, `
SELECT DISTINCT vehicle_id
FROM patio.service_executions
ORDER BY vehicle_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FinalizedVisits loads the vehicle's finalized history through the same
// query the API recomputes from.
func FinalizedVisits(ctx context.Context, conn apidb.DBTX, vehicleID int64) ([]mileage.Visit, error) {
	return apidb.NewQueries(conn).FinalizedVisits(ctx, vehicleID)
}

// RecomputeVehicle reads the history and stores the new average in one
// transaction. With write=false the transaction only reads.
func RecomputeVehicle(ctx context.Context, pool *pgxpool.Pool, vehicleID int64, write bool) (mileage.Estimate, error) {
	var est mileage.Estimate
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		q := apidb.NewQueries(tx)
		visits, err := q.FinalizedVisits(ctx, vehicleID)
		if err != nil {
			return fmt.Errorf("load visits: %w", err)
		}
		est = mileage.EstimateHistory(visits)
		if !write {
			return nil
		}
		return q.SetAverageDailyKM(ctx, vehicleID, est.AvgDailyKM)
	})
	return est, err
}

// Source exposes the pool to the batch runner.
type Source struct {
	Pool *pgxpool.Pool
}

func (s Source) VehicleIDs(ctx context.Context) ([]int64, error) {
	return VehicleIDs(ctx, s.Pool)
}

func (s Source) Recompute(ctx context.Context, vehicleID int64, write bool) (mileage.Estimate, error) {
	return RecomputeVehicle(ctx, s.Pool, vehicleID, write)
}
