// Package profile owns the vehicle mileage profile: every change to a
// vehicle's visit history is written together with the recomputed average
// daily distance, in one transaction.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/02loveslollipop/patio/internal/cache"
	"github.com/02loveslollipop/patio/internal/logging"
	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/services/api/db"
)

var (
	ErrVehicleNotFound   = errors.New("vehicle not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrAlreadyFinalized  = errors.New("execution already finalized")
	ErrNothingToRevert   = errors.New("no finalized visit with that odometer reading")
	ErrInvalidEdit       = errors.New("invalid visit edit")
	ErrSameVehicle       = errors.New("cannot merge a vehicle into itself")
)

// Repository is the database surface the service needs.
type Repository interface {
	db.Querier
	InTx(ctx context.Context, fn func(db.Querier) error) error
}

// Cache stores profiles between reads. Failures are logged, never returned.
type Cache interface {
	Get(ctx context.Context, vehicleID int64) (mileage.Profile, error)
	Put(ctx context.Context, p mileage.Profile) error
	Invalidate(ctx context.Context, vehicleIDs ...int64) error
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	Cache    Cache
	Location *time.Location
	PageSize int
	Now      func() time.Time
}

const defaultPageSize = 20

// Service implements the mileage profile operations.
type Service struct {
	repo     Repository
	cache    Cache
	loc      *time.Location
	pageSize int
	now      func() time.Time
}

// New builds a Service over repo.
func New(repo Repository, opts Options) *Service {
	s := &Service{
		repo:     repo,
		cache:    opts.Cache,
		loc:      opts.Location,
		pageSize: opts.PageSize,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// recompute reads the vehicle's finalized history through q, estimates the
// average and stores it, NULL included.
func recompute(ctx context.Context, q db.Querier, vehicleID int64) (mileage.Estimate, error) {
	visits, err := q.FinalizedVisits(ctx, vehicleID)
	if err != nil {
		return mileage.Estimate{}, err
	}
	est := mileage.EstimateHistory(visits)
	if err := q.SetAverageDailyKM(ctx, vehicleID, est.AvgDailyKM); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return mileage.Estimate{}, ErrVehicleNotFound
		}
		return mileage.Estimate{}, err
	}
	return est, nil
}

// transact runs fn in one transaction and records the outcome.
func (s *Service) transact(ctx context.Context, trigger string, fn func(q db.Querier) (mileage.Estimate, error)) (mileage.Estimate, error) {
	start := time.Now()
	var est mileage.Estimate
	err := s.repo.InTx(ctx, func(q db.Querier) error {
		var err error
		est, err = fn(q)
		return err
	})
	if rejected(err) {
		metrics.RecordRejected(trigger, time.Since(start))
	} else {
		metrics.RecordRecompute(trigger, err == nil && est.Present(), err, time.Since(start))
	}
	if err != nil {
		return mileage.Estimate{}, err
	}
	return est, nil
}

// rejected reports whether err is a caller mistake rather than a failure to
// read or write.
func rejected(err error) bool {
	for _, target := range []error{
		ErrVehicleNotFound, ErrExecutionNotFound, ErrAlreadyFinalized,
		ErrNothingToRevert, ErrInvalidEdit, ErrSameVehicle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) evict(ctx context.Context, vehicleIDs ...int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, vehicleIDs...); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Ints64("vehicle_ids", vehicleIDs).Msg("profile cache invalidation failed")
	}
}

func logRecompute(ctx context.Context, trigger string, vehicleID int64, est mileage.Estimate) {
	ev := logging.Ctx(ctx).Info().
		Str("trigger", trigger).
		Int64("vehicle_id", vehicleID).
		Int("valid_visits", len(est.Valid)).
		Str("reason", string(est.Reason))
	if est.AvgDailyKM != nil {
		ev = ev.Float64("avg_daily_km", *est.AvgDailyKM)
	}
	ev.Msg("mileage recomputed")
}

func vehicleExists(ctx context.Context, q db.Querier, vehicleID int64) error {
	if _, err := q.GetVehicle(ctx, vehicleID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrVehicleNotFound
		}
		return err
	}
	return nil
}

// Recompute refreshes the stored average from the current history.
func (s *Service) Recompute(ctx context.Context, vehicleID int64) (mileage.Estimate, error) {
	est, err := s.transact(ctx, metrics.TriggerManual, func(q db.Querier) (mileage.Estimate, error) {
		return recompute(ctx, q, vehicleID)
	})
	if err != nil {
		return mileage.Estimate{}, err
	}
	s.evict(ctx, vehicleID)
	logRecompute(ctx, metrics.TriggerManual, vehicleID, est)
	return est, nil
}

// GetProfile returns the stored average, from cache when possible.
func (s *Service) GetProfile(ctx context.Context, vehicleID int64) (mileage.Profile, error) {
	if s.cache != nil {
		p, err := s.cache.Get(ctx, vehicleID)
		if err == nil {
			metrics.CacheHits.Inc()
			return p, nil
		}
		metrics.CacheMisses.Inc()
		if !errors.Is(err, cache.ErrMiss) {
			logging.Ctx(ctx).Warn().Err(err).Int64("vehicle_id", vehicleID).Msg("profile cache read failed")
		}
	}

	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return mileage.Profile{}, ErrVehicleNotFound
		}
		return mileage.Profile{}, err
	}
	p := mileage.Profile{VehicleID: v.ID, AvgDailyKM: v.AvgDailyKM}

	if s.cache != nil {
		if err := s.cache.Put(ctx, p); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("vehicle_id", vehicleID).Msg("profile cache write failed")
		}
	}
	return p, nil
}

// Visits returns the vehicle's finalized history.
func (s *Service) Visits(ctx context.Context, vehicleID int64) ([]mileage.Visit, error) {
	if err := vehicleExists(ctx, s.repo, vehicleID); err != nil {
		return nil, err
	}
	return s.repo.FinalizedVisits(ctx, vehicleID)
}

// Diagnose traces the estimate over the stored history without writing.
func (s *Service) Diagnose(ctx context.Context, vehicleID int64) (mileage.Diagnosis, error) {
	visits, err := s.Visits(ctx, vehicleID)
	if err != nil {
		return mileage.Diagnosis{}, err
	}
	return mileage.Diagnose(visits), nil
}
