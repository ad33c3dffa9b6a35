package profile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/internal/plate"
	"github.com/02loveslollipop/patio/services/api/db"
)

// ProactiveItem is one vehicle due for a contact.
type ProactiveItem struct {
	db.ProactiveCandidate
	Projection mileage.Projection `json:"projection"`
	Metric     float64            `json:"metric"`
}

// ProactivePage is one page of the proactive contact list.
type ProactivePage struct {
	Items    []ProactiveItem `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int             `json:"total"`
}

// Proactive projects every candidate to now, keeps the ones rule marks due
// and returns the requested page, most overdue first.
func (s *Service) Proactive(ctx context.Context, rule mileage.DueRule, page int) (ProactivePage, error) {
	candidates, err := s.repo.ProactiveCandidates(ctx)
	if err != nil {
		return ProactivePage{}, err
	}

	now := s.now()
	due := make([]ProactiveItem, 0)
	for _, c := range candidates {
		p := mileage.Project(c.AvgDailyKM, c.LastVisit, now)
		if !rule.Due(p) {
			continue
		}
		c.Plate = plate.Normalize(c.Plate)
		due = append(due, ProactiveItem{
			ProactiveCandidate: c,
			Projection:         p,
			Metric:             rule.Metric(p),
		})
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Metric != due[j].Metric {
			return due[i].Metric > due[j].Metric
		}
		return due[i].VehicleID < due[j].VehicleID
	})

	if page < 1 {
		page = 1
	}
	// Compare in pages before multiplying so a huge page cannot overflow.
	start := len(due)
	if page-1 <= len(due)/s.pageSize {
		start = (page - 1) * s.pageSize
	}
	end := len(due)
	if len(due)-start > s.pageSize {
		end = start + s.pageSize
	}

	return ProactivePage{
		Items:    due[start:end],
		Page:     page,
		PageSize: s.pageSize,
		Total:    len(due),
	}, nil
}

// MarkContacted records that the vehicle was contacted today, in the shop's
// time zone, and returns the stored date.
func (s *Service) MarkContacted(ctx context.Context, vehicleID int64) (time.Time, error) {
	local := s.now().In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.repo.MarkContacted(ctx, vehicleID, day); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return time.Time{}, ErrVehicleNotFound
		}
		return time.Time{}, err
	}
	return day, nil
}

// MergeCandidates pairs legacy plates with their Mercosul conversion.
func (s *Service) MergeCandidates(ctx context.Context) ([]plate.Pair, error) {
	vehicles, err := s.repo.VehiclePlates(ctx)
	if err != nil {
		return nil, err
	}
	return plate.Pairs(vehicles), nil
}

// Merge folds oldID into newID and recomputes the surviving vehicle.
func (s *Service) Merge(ctx context.Context, oldID, newID int64) (mileage.Estimate, error) {
	if oldID == newID {
		return mileage.Estimate{}, ErrSameVehicle
	}
	est, err := s.transact(ctx, metrics.TriggerMerge, func(q db.Querier) (mileage.Estimate, error) {
		for _, id := range []int64{oldID, newID} {
			if err := vehicleExists(ctx, q, id); err != nil {
				return mileage.Estimate{}, err
			}
		}
		if err := q.MergeVehicles(ctx, oldID, newID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return mileage.Estimate{}, ErrVehicleNotFound
			}
			return mileage.Estimate{}, err
		}
		return recompute(ctx, q, newID)
	})
	if err != nil {
		return mileage.Estimate{}, err
	}
	s.evict(ctx, oldID, newID)
	logRecompute(ctx, metrics.TriggerMerge, newID, est)
	return est, nil
}
