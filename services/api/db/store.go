package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/internal/plate"
)

// ErrNotFound is returned when a lookup or targeted update matches no row.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Querier lists every query the API runs, inside or outside a transaction.
type Querier interface {
	GetVehicle(ctx context.Context, id int64) (Vehicle, error)
	FinalizedVisits(ctx context.Context, vehicleID int64) ([]mileage.Visit, error)
	SetAverageDailyKM(ctx context.Context, vehicleID int64, avg *float64) error

	GetExecutionForUpdate(ctx context.Context, id int64) (Execution, error)
	FinalizeExecution(ctx context.Context, id, userID int64, at time.Time) error
	ReleaseBox(ctx context.Context, boxID int64) error
	CancelVisitsAtOdometer(ctx context.Context, vehicleID, odometerKM int64) (int64, error)
	UpdateVisits(ctx context.Context, vehicleID int64, edits []VisitEdit) error

	ProactiveCandidates(ctx context.Context) ([]ProactiveCandidate, error)
	MarkContacted(ctx context.Context, vehicleID int64, day time.Time) error

	VehiclePlates(ctx context.Context) ([]plate.Vehicle, error)
	MergeVehicles(ctx context.Context, oldID, newID int64) error
}

// Queries runs statements against a pool or a transaction.
type Queries struct {
	db DBTX
}

// NewQueries binds the queries to a pool or an open transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store wraps database access helpers.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{Queries: NewQueries(pool), pool: pool}, nil
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(Querier) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(NewQueries(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}
