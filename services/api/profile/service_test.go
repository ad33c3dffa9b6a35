package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/patio/internal/cache"
	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/services/api/db"
)

var (
	base         = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	errCacheMiss = cache.ErrMiss
)

func day(n int) time.Time { return base.AddDate(0, 0, n) }

func ptr[T any](v T) *T { return &v }

func newService(repo *fakeRepo, now time.Time) *Service {
	return New(repo, Options{Now: func() time.Time { return now }})
}

func TestRecomputePersistsAverage(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)
	repo.addVisit(11, 1, day(10), 1500, db.StatusFinalized)

	est, err := newService(repo, day(10)).Recompute(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, est.Present())
	assert.Equal(t, 50.0, *est.AvgDailyKM)
	assert.Equal(t, 50.0, *repo.vehicles[1].AvgDailyKM)
	assert.Equal(t, 1, repo.commits)
}

func TestRecomputeStoresAbsentAverage(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	v := repo.vehicles[1]
	v.AvgDailyKM = ptr(40.0)
	repo.vehicles[1] = v
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)

	est, err := newService(repo, day(1)).Recompute(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, est.Present())
	assert.Equal(t, mileage.ReasonInsufficientVisits, est.Reason)
	assert.Nil(t, repo.vehicles[1].AvgDailyKM)
}

func TestRecomputeUnknownVehicle(t *testing.T) {
	_, err := newService(newFakeRepo(), base).Recompute(context.Background(), 99)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func finalizeFixture() *fakeRepo {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)

	odo := int64(1500)
	box := int64(9)
	repo.executions[11] = fakeExecution{Execution: db.Execution{
		ID:         11,
		VehicleID:  1,
		BoxID:      &box,
		OdometerKM: &odo,
		Status:     db.StatusInProgress,
	}}
	repo.boxes[9] = true
	return repo
}

func TestFinalizeRecomputesWithTheWrite(t *testing.T) {
	repo := finalizeFixture()
	c := newFakeCache()
	svc := New(repo, Options{Cache: c, Now: func() time.Time { return day(10) }})

	res, err := svc.Finalize(context.Background(), 11, 77)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.VehicleID)
	assert.True(t, res.FinishedAt.Equal(day(10)))
	require.True(t, res.Estimate.Present())
	assert.Equal(t, 50.0, *res.Estimate.AvgDailyKM)

	exec := repo.executions[11]
	assert.Equal(t, db.StatusFinalized, exec.Status)
	assert.Equal(t, int64(77), *exec.FinishedBy)
	assert.False(t, repo.boxes[9])
	assert.Equal(t, 50.0, *repo.vehicles[1].AvgDailyKM)
	assert.Equal(t, []int64{1}, c.invalidated)
}

func TestFinalizeRollsBackOnPersistenceFailure(t *testing.T) {
	repo := finalizeFixture()
	repo.failSetAverage = errDiskFull
	c := newFakeCache()
	svc := New(repo, Options{Cache: c, Now: func() time.Time { return day(10) }})

	_, err := svc.Finalize(context.Background(), 11, 77)
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, db.StatusInProgress, repo.executions[11].Status)
	assert.Nil(t, repo.executions[11].FinishedBy)
	assert.True(t, repo.boxes[9])
	assert.Nil(t, repo.vehicles[1].AvgDailyKM)
	assert.Equal(t, 1, repo.rollbacks)
	assert.Empty(t, c.invalidated)
}

func TestRecomputeOutcomeSeparatesRejections(t *testing.T) {
	rejectedCount := metrics.Recomputations.WithLabelValues(metrics.TriggerFinalize, "rejected")
	failedCount := metrics.Recomputations.WithLabelValues(metrics.TriggerFinalize, "error")
	rejectedBefore, failedBefore := testutil.ToFloat64(rejectedCount), testutil.ToFloat64(failedCount)

	repo := finalizeFixture()
	svc := newService(repo, day(10))
	_, err := svc.Finalize(context.Background(), 10, 1)
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(rejectedCount))
	assert.Equal(t, failedBefore, testutil.ToFloat64(failedCount))

	repo.failSetAverage = errDiskFull
	_, err = svc.Finalize(context.Background(), 11, 77)
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(rejectedCount))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failedCount))
}

func TestRejected(t *testing.T) {
	assert.True(t, rejected(ErrNothingToRevert))
	assert.True(t, rejected(fmt.Errorf("edit 3: %w", ErrInvalidEdit)))
	assert.False(t, rejected(errDiskFull))
	assert.False(t, rejected(nil))
}

func TestFinalizeErrors(t *testing.T) {
	repo := finalizeFixture()
	svc := newService(repo, day(10))

	_, err := svc.Finalize(context.Background(), 404, 1)
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = svc.Finalize(context.Background(), 10, 1)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestRevert(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)
	repo.addVisit(11, 1, day(5), 800, db.StatusFinalized)
	repo.addVisit(12, 1, day(10), 1500, db.StatusFinalized)
	repo.addVisit(13, 1, day(11), 1500, db.StatusFinalized)
	svc := newService(repo, day(12))

	est, err := svc.Recompute(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 500.0/11.0, *est.AvgDailyKM, 1e-9)

	est, err = svc.Revert(context.Background(), 1, 1500)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCancelled, repo.executions[12].Status)
	assert.Equal(t, db.StatusCancelled, repo.executions[13].Status)
	assert.False(t, est.Present())
	assert.Nil(t, repo.vehicles[1].AvgDailyKM)

	_, err = svc.Revert(context.Background(), 1, 4242)
	assert.ErrorIs(t, err, ErrNothingToRevert)
	assert.Equal(t, 1, repo.rollbacks)

	_, err = svc.Revert(context.Background(), 2, 1000)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func poisonedHistory() *fakeRepo {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	repo.addVehicle(2, "XYZ9876")
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)
	repo.addVisit(11, 1, day(5), 99999, db.StatusFinalized)
	repo.addVisit(12, 1, day(10), 1500, db.StatusFinalized)
	repo.addVisit(20, 2, day(0), 5000, db.StatusFinalized)
	return repo
}

func TestPreviewAdjustDoesNotWrite(t *testing.T) {
	repo := poisonedHistory()
	svc := newService(repo, day(10))

	before, err := svc.Recompute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 99999}, []int64{before.Valid[0].OdometerKM, before.Valid[1].OdometerKM})

	est, err := svc.PreviewAdjust(context.Background(), 1, []db.VisitEdit{
		{ExecutionID: 11, FinishedAt: day(5), OdometerKM: 1200},
	})
	require.NoError(t, err)
	require.True(t, est.Present())
	assert.Equal(t, 50.0, *est.AvgDailyKM)
	assert.Len(t, est.Valid, 3)

	assert.Equal(t, int64(99999), *repo.executions[11].OdometerKM)
	assert.Equal(t, *before.AvgDailyKM, *repo.vehicles[1].AvgDailyKM)
}

func TestSaveAdjust(t *testing.T) {
	repo := poisonedHistory()
	c := newFakeCache()
	svc := New(repo, Options{Cache: c, Now: func() time.Time { return day(10) }})

	est, err := svc.SaveAdjust(context.Background(), 1, []db.VisitEdit{
		{ExecutionID: 11, FinishedAt: day(5), OdometerKM: 1200},
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, *est.AvgDailyKM)
	assert.Equal(t, int64(1200), *repo.executions[11].OdometerKM)
	assert.Equal(t, 50.0, *repo.vehicles[1].AvgDailyKM)
	assert.Equal(t, []int64{1}, c.invalidated)
}

func TestAdjustRejectsInvalidEdits(t *testing.T) {
	tests := []struct {
		name  string
		edits []db.VisitEdit
	}{
		{"empty", nil},
		{"other vehicle's visit", []db.VisitEdit{{ExecutionID: 20, FinishedAt: day(1), OdometerKM: 100}}},
		{"non-positive odometer", []db.VisitEdit{{ExecutionID: 11, FinishedAt: day(5), OdometerKM: 0}}},
		{"missing date", []db.VisitEdit{{ExecutionID: 11, OdometerKM: 1200}}},
		{"duplicate row", []db.VisitEdit{
			{ExecutionID: 11, FinishedAt: day(5), OdometerKM: 1200},
			{ExecutionID: 11, FinishedAt: day(6), OdometerKM: 1300},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := poisonedHistory()
			svc := newService(repo, day(10))

			_, err := svc.PreviewAdjust(context.Background(), 1, tt.edits)
			assert.ErrorIs(t, err, ErrInvalidEdit)

			_, err = svc.SaveAdjust(context.Background(), 1, tt.edits)
			assert.ErrorIs(t, err, ErrInvalidEdit)
			assert.Equal(t, int64(99999), *repo.executions[11].OdometerKM)
			assert.Equal(t, 0, repo.commits)
		})
	}
}

func TestGetProfileUsesCache(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	v := repo.vehicles[1]
	v.AvgDailyKM = ptr(42.0)
	repo.vehicles[1] = v

	c := newFakeCache()
	svc := New(repo, Options{Cache: c})

	p, err := svc.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 42.0, *p.AvgDailyKM)
	require.Contains(t, c.profiles, int64(1))

	delete(repo.vehicles, 1)
	p, err = svc.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 42.0, *p.AvgDailyKM)
}

func TestGetProfileSurvivesCacheFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")

	c := newFakeCache()
	c.getErr = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	svc := New(repo, Options{Cache: c})

	p, err := svc.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, p.AvgDailyKM)

	_, err = svc.GetProfile(context.Background(), 2)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestDiagnoseMatchesRecompute(t *testing.T) {
	repo := poisonedHistory()
	svc := newService(repo, day(10))

	d, err := svc.Diagnose(context.Background(), 1)
	require.NoError(t, err)
	est, err := svc.Recompute(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, est, d.Estimate)
	assert.Len(t, d.Checks, 3)
}

func TestMerge(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	repo.addVehicle(2, "ABC1C34")
	old := repo.vehicles[1]
	old.Model = ptr("Actros 2651")
	repo.vehicles[1] = old
	repo.addVisit(10, 1, day(0), 1000, db.StatusFinalized)
	repo.addVisit(11, 2, day(10), 1500, db.StatusFinalized)

	c := newFakeCache()
	svc := New(repo, Options{Cache: c})

	pairs, err := svc.MergeCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(1), pairs[0].Old.ID)
	assert.Equal(t, int64(2), pairs[0].New.ID)

	est, err := svc.Merge(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, *est.AvgDailyKM)
	assert.NotContains(t, repo.vehicles, int64(1))
	assert.Equal(t, "Actros 2651", *repo.vehicles[2].Model)
	assert.Equal(t, int64(2), repo.executions[10].VehicleID)
	assert.ElementsMatch(t, []int64{1, 2}, c.invalidated)
}

func TestMergeErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, "ABC1234")
	svc := newService(repo, base)

	_, err := svc.Merge(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSameVehicle)

	_, err = svc.Merge(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
	assert.Contains(t, repo.vehicles, int64(1))
}
