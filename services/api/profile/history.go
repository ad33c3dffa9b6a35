package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/services/api/db"
)

// validateEdits checks edits against the vehicle's current finalized visits.
func validateEdits(edits []db.VisitEdit, current []mileage.Visit) error {
	if len(edits) == 0 {
		return fmt.Errorf("%w: no rows submitted", ErrInvalidEdit)
	}
	owned := make(map[int64]struct{}, len(current))
	for _, v := range current {
		owned[v.ID] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(edits))
	for _, e := range edits {
		if _, ok := owned[e.ExecutionID]; !ok {
			return fmt.Errorf("%w: execution %d is not a finalized visit of this vehicle", ErrInvalidEdit, e.ExecutionID)
		}
		if _, dup := seen[e.ExecutionID]; dup {
			return fmt.Errorf("%w: execution %d submitted twice", ErrInvalidEdit, e.ExecutionID)
		}
		seen[e.ExecutionID] = struct{}{}
		if e.OdometerKM <= 0 {
			return fmt.Errorf("%w: execution %d odometer must be positive", ErrInvalidEdit, e.ExecutionID)
		}
		if e.FinishedAt.IsZero() {
			return fmt.Errorf("%w: execution %d has no finish date", ErrInvalidEdit, e.ExecutionID)
		}
	}
	return nil
}

// applyEdits overlays edits on current and returns the history re-sorted by
// finish time.
func applyEdits(current []mileage.Visit, edits []db.VisitEdit) []mileage.Visit {
	byID := make(map[int64]db.VisitEdit, len(edits))
	for _, e := range edits {
		byID[e.ExecutionID] = e
	}
	out := make([]mileage.Visit, 0, len(current))
	for _, v := range current {
		if e, ok := byID[v.ID]; ok {
			v.FinishedAt = e.FinishedAt
			v.OdometerKM = e.OdometerKM
		}
		out = append(out, v)
	}
	return mileage.SortByFinish(out)
}

// PreviewAdjust returns the estimate the history would yield with edits
// applied. Nothing is written.
func (s *Service) PreviewAdjust(ctx context.Context, vehicleID int64, edits []db.VisitEdit) (mileage.Estimate, error) {
	current, err := s.Visits(ctx, vehicleID)
	if err != nil {
		return mileage.Estimate{}, err
	}
	if err := validateEdits(edits, current); err != nil {
		return mileage.Estimate{}, err
	}
	return mileage.EstimateHistory(applyEdits(current, edits)), nil
}

// SaveAdjust writes edits and recomputes the average in one transaction.
func (s *Service) SaveAdjust(ctx context.Context, vehicleID int64, edits []db.VisitEdit) (mileage.Estimate, error) {
	est, err := s.transact(ctx, metrics.TriggerAdjust, func(q db.Querier) (mileage.Estimate, error) {
		if err := vehicleExists(ctx, q, vehicleID); err != nil {
			return mileage.Estimate{}, err
		}
		current, err := q.FinalizedVisits(ctx, vehicleID)
		if err != nil {
			return mileage.Estimate{}, err
		}
		if err := validateEdits(edits, current); err != nil {
			return mileage.Estimate{}, err
		}
		if err := q.UpdateVisits(ctx, vehicleID, edits); err != nil {
			return mileage.Estimate{}, err
		}
		return recompute(ctx, q, vehicleID)
	})
	if err != nil {
		return mileage.Estimate{}, err
	}
	s.evict(ctx, vehicleID)
	logRecompute(ctx, metrics.TriggerAdjust, vehicleID, est)
	return est, nil
}

// Finalized is the result of closing an execution.
type Finalized struct {
	ExecutionID int64            `json:"execution_id"`
	VehicleID   int64            `json:"vehicle_id"`
	FinishedAt  time.Time        `json:"finished_at"`
	Estimate    mileage.Estimate `json:"estimate"`
}

// Finalize closes an execution, frees its box and recomputes the vehicle's
// average.
func (s *Service) Finalize(ctx context.Context, executionID, userID int64) (Finalized, error) {
	out := Finalized{ExecutionID: executionID, FinishedAt: s.now().UTC()}
	est, err := s.transact(ctx, metrics.TriggerFinalize, func(q db.Querier) (mileage.Estimate, error) {
		exec, err := q.GetExecutionForUpdate(ctx, executionID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return mileage.Estimate{}, ErrExecutionNotFound
			}
			return mileage.Estimate{}, err
		}
		if exec.Status == db.StatusFinalized {
			return mileage.Estimate{}, ErrAlreadyFinalized
		}
		out.VehicleID = exec.VehicleID

		if err := q.FinalizeExecution(ctx, executionID, userID, out.FinishedAt); err != nil {
			return mileage.Estimate{}, err
		}
		if exec.BoxID != nil {
			if err := q.ReleaseBox(ctx, *exec.BoxID); err != nil {
				return mileage.Estimate{}, err
			}
		}
		return recompute(ctx, q, exec.VehicleID)
	})
	if err != nil {
		return Finalized{}, err
	}
	out.Estimate = est
	s.evict(ctx, out.VehicleID)
	logRecompute(ctx, metrics.TriggerFinalize, out.VehicleID, est)
	return out, nil
}

// Revert cancels every finalized visit of the vehicle at odometerKM and
// recomputes the average.
func (s *Service) Revert(ctx context.Context, vehicleID, odometerKM int64) (mileage.Estimate, error) {
	est, err := s.transact(ctx, metrics.TriggerRevert, func(q db.Querier) (mileage.Estimate, error) {
		if err := vehicleExists(ctx, q, vehicleID); err != nil {
			return mileage.Estimate{}, err
		}
		n, err := q.CancelVisitsAtOdometer(ctx, vehicleID, odometerKM)
		if err != nil {
			return mileage.Estimate{}, err
		}
		if n == 0 {
			return mileage.Estimate{}, ErrNothingToRevert
		}
		return recompute(ctx, q, vehicleID)
	})
	if err != nil {
		return mileage.Estimate{}, err
	}
	s.evict(ctx, vehicleID)
	logRecompute(ctx, metrics.TriggerRevert, vehicleID, est)
	return est, nil
}
