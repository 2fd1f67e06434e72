package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts an event with its capacity and returns its ID. The sales
// counter starts at zero and is only ever incremented by settlement.
func (r *EventRepo) Create(
	ctx context.Context,
	title, venue string,
	startsAt time.Time,
	capacity int,
) (int64, error) {
	const op = "postgres.EventRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO events(title, venue, starts_at, capacity, sales_count)
	     VALUES ($1, $2, $3, $4, 0)
	     RETURNING id`,
		title, venue, startsAt, capacity,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.EventRepo.Get"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, title, venue, starts_at, capacity, sales_count
	     FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.Venue, &e.StartsAt, &e.Capacity, &e.SalesCount)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *EventRepo) Availability(ctx context.Context, id int64) (*domain.EventAvailability, error) {
	const op = "postgres.EventRepo.Availability"

	db := r.handle()

	var a domain.EventAvailability
	err := db.QueryRow(ctx,
		`SELECT id, capacity, sales_count
	     FROM events WHERE id = $1`,
		id,
	).Scan(&a.EventID, &a.Capacity, &a.SalesCount)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	a.Remaining = a.Capacity - a.SalesCount
	if a.Remaining < 0 {
		a.Remaining = 0
	}

	return &a, nil
}
