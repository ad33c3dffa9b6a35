package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/internal/plate"
	"github.com/02loveslollipop/patio/services/api/db"
)

type fakeExecution struct {
	db.Execution
	FinishedBy *int64
}

type fakeState struct {
	vehicles   map[int64]db.Vehicle
	executions map[int64]fakeExecution
	boxes      map[int64]bool
}

func (s fakeState) clone() fakeState {
	out := fakeState{
		vehicles:   make(map[int64]db.Vehicle, len(s.vehicles)),
		executions: make(map[int64]fakeExecution, len(s.executions)),
		boxes:      make(map[int64]bool, len(s.boxes)),
	}
	for k, v := range s.vehicles {
		out.vehicles[k] = v
	}
	for k, v := range s.executions {
		out.executions[k] = v
	}
	for k, v := range s.boxes {
		out.boxes[k] = v
	}
	return out
}

// fakeRepo is an in-memory Repository. InTx restores the previous state when
// fn fails, like a rolled back transaction.
type fakeRepo struct {
	fakeState
	failSetAverage error
	commits        int
	rollbacks      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{fakeState: fakeState{
		vehicles:   map[int64]db.Vehicle{},
		executions: map[int64]fakeExecution{},
		boxes:      map[int64]bool{},
	}}
}

func (f *fakeRepo) addVehicle(id int64, plateText string) {
	f.vehicles[id] = db.Vehicle{ID: id, Plate: plateText}
}

func (f *fakeRepo) addVisit(id, vehicleID int64, finished time.Time, km int64, status string) {
	at := finished
	odo := km
	f.executions[id] = fakeExecution{Execution: db.Execution{
		ID:         id,
		VehicleID:  vehicleID,
		OdometerKM: &odo,
		Status:     status,
		FinishedAt: &at,
	}}
}

func (f *fakeRepo) InTx(_ context.Context, fn func(db.Querier) error) error {
	snapshot := f.fakeState.clone()
	if err := fn(f); err != nil {
		f.fakeState = snapshot
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeRepo) GetVehicle(_ context.Context, id int64) (db.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return db.Vehicle{}, fmt.Errorf("vehicle %d: %w", id, db.ErrNotFound)
	}
	return v, nil
}

func (f *fakeRepo) FinalizedVisits(_ context.Context, vehicleID int64) ([]mileage.Visit, error) {
	visits := make([]mileage.Visit, 0)
	for _, e := range f.executions {
		if e.VehicleID != vehicleID || e.Status != db.StatusFinalized {
			continue
		}
		if e.OdometerKM == nil || *e.OdometerKM <= 0 || e.FinishedAt == nil {
			continue
		}
		visits = append(visits, mileage.Visit{ID: e.ID, FinishedAt: *e.FinishedAt, OdometerKM: *e.OdometerKM})
	}
	sort.Slice(visits, func(i, j int) bool {
		if !visits[i].FinishedAt.Equal(visits[j].FinishedAt) {
			return visits[i].FinishedAt.Before(visits[j].FinishedAt)
		}
		return visits[i].ID < visits[j].ID
	})
	return visits, nil
}

func (f *fakeRepo) SetAverageDailyKM(_ context.Context, vehicleID int64, avg *float64) error {
	if f.failSetAverage != nil {
		return f.failSetAverage
	}
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %d: %w", vehicleID, db.ErrNotFound)
	}
	v.AvgDailyKM = avg
	f.vehicles[vehicleID] = v
	return nil
}

func (f *fakeRepo) GetExecutionForUpdate(_ context.Context, id int64) (db.Execution, error) {
	e, ok := f.executions[id]
	if !ok {
		return db.Execution{}, fmt.Errorf("execution %d: %w", id, db.ErrNotFound)
	}
	return e.Execution, nil
}

func (f *fakeRepo) FinalizeExecution(_ context.Context, id, userID int64, at time.Time) error {
	e, ok := f.executions[id]
	if !ok {
		return fmt.Errorf("execution %d: %w", id, db.ErrNotFound)
	}
	e.Status = db.StatusFinalized
	e.FinishedAt = &at
	e.FinishedBy = &userID
	f.executions[id] = e
	return nil
}

func (f *fakeRepo) ReleaseBox(_ context.Context, boxID int64) error {
	f.boxes[boxID] = false
	return nil
}

func (f *fakeRepo) CancelVisitsAtOdometer(_ context.Context, vehicleID, odometerKM int64) (int64, error) {
	var n int64
	for id, e := range f.executions {
		if e.VehicleID == vehicleID && e.Status == db.StatusFinalized && e.OdometerKM != nil && *e.OdometerKM == odometerKM {
			e.Status = db.StatusCancelled
			f.executions[id] = e
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) UpdateVisits(_ context.Context, vehicleID int64, edits []db.VisitEdit) error {
	for _, ed := range edits {
		e, ok := f.executions[ed.ExecutionID]
		if !ok || e.VehicleID != vehicleID {
			return fmt.Errorf("execution %d: %w", ed.ExecutionID, db.ErrNotFound)
		}
		at, km := ed.FinishedAt, ed.OdometerKM
		e.FinishedAt = &at
		e.OdometerKM = &km
		f.executions[ed.ExecutionID] = e
	}
	return nil
}

func (f *fakeRepo) ProactiveCandidates(ctx context.Context) ([]db.ProactiveCandidate, error) {
	ids := make([]int64, 0, len(f.vehicles))
	for id := range f.vehicles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]db.ProactiveCandidate, 0)
	for _, id := range ids {
		v := f.vehicles[id]
		if v.AvgDailyKM == nil || *v.AvgDailyKM <= 0 || v.ProactiveContactDate != nil {
			continue
		}
		visits, _ := f.FinalizedVisits(ctx, id)
		if len(visits) == 0 {
			continue
		}
		out = append(out, db.ProactiveCandidate{
			VehicleID:  id,
			Plate:      v.Plate,
			AvgDailyKM: *v.AvgDailyKM,
			LastVisit:  visits[len(visits)-1],
		})
	}
	return out, nil
}

func (f *fakeRepo) MarkContacted(_ context.Context, vehicleID int64, day time.Time) error {
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %d: %w", vehicleID, db.ErrNotFound)
	}
	v.ProactiveContactDate = &day
	f.vehicles[vehicleID] = v
	return nil
}

func (f *fakeRepo) VehiclePlates(_ context.Context) ([]plate.Vehicle, error) {
	out := make([]plate.Vehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, plate.Vehicle{ID: v.ID, Plate: v.Plate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) MergeVehicles(_ context.Context, oldID, newID int64) error {
	o, ok := f.vehicles[oldID]
	n, ok2 := f.vehicles[newID]
	if !ok || !ok2 {
		return fmt.Errorf("vehicles %d/%d: %w", oldID, newID, db.ErrNotFound)
	}
	if n.Model == nil {
		n.Model = o.Model
	}
	if n.Company == nil {
		n.Company = o.Company
	}
	if n.DriverName == nil {
		n.DriverName = o.DriverName
	}
	f.vehicles[newID] = n
	for id, e := range f.executions {
		if e.VehicleID == oldID {
			e.VehicleID = newID
			f.executions[id] = e
		}
	}
	delete(f.vehicles, oldID)
	return nil
}

var errDiskFull = errors.New("could not extend file: disk full")

type fakeCache struct {
	profiles    map[int64]mileage.Profile
	invalidated []int64
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{profiles: map[int64]mileage.Profile{}}
}

func (c *fakeCache) Get(_ context.Context, vehicleID int64) (mileage.Profile, error) {
	if c.getErr != nil {
		return mileage.Profile{}, c.getErr
	}
	p, ok := c.profiles[vehicleID]
	if !ok {
		return mileage.Profile{}, errCacheMiss
	}
	return p, nil
}

func (c *fakeCache) Put(_ context.Context, p mileage.Profile) error {
	c.profiles[p.VehicleID] = p
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, vehicleIDs ...int64) error {
	for _, id := range vehicleIDs {
		delete(c.profiles, id)
	}
	c.invalidated = append(c.invalidated, vehicleIDs...)
	return nil
}
