package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *TicketRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.Get"

	db := r.handle()

	var t domain.Ticket
	err := db.QueryRow(ctx,
		`SELECT id, order_id, event_id, owner_wallet, status,
	            redemption_secret, redeemed_at, created_at
	     FROM tickets WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.OrderID, &t.EventID, &t.OwnerWallet, &t.Status,
		&t.RedemptionSecret, &t.RedeemedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &t, nil
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByOrder"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, order_id, event_id, owner_wallet, status,
	            redemption_secret, redeemed_at, created_at
	     FROM tickets WHERE order_id = $1
	     ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.EventID, &t.OwnerWallet, &t.Status,
			&t.RedemptionSecret, &t.RedeemedAt, &t.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tickets, nil
}

// Redeem flips a ticket from issued to redeemed and updates the owning
// order's check-in record in the same transaction. It returns false when
// the ticket was not in the issued state, which makes redemption
// exactly-once under concurrent callers.
func (r *TicketRepo) Redeem(ctx context.Context, ticketID uuid.UUID, at time.Time) (bool, error) {
	if r.db != nil {
		return r.redeemCore(ctx, r.db, ticketID, at)
	}

	store := &Store{pool: r.pool}

	var flipped bool
	err := store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		flipped, err = r.redeemCore(ctx, tx, ticketID, at)
		return err
	})
	if err != nil {
		return false, err
	}

	return flipped, nil
}

func (r *TicketRepo) redeemCore(ctx context.Context, db DB, ticketID uuid.UUID, at time.Time) (bool, error) {
	const op = "postgres.TicketRepo.redeemCore"

	var orderID uuid.UUID
	err := db.QueryRow(ctx,
		`UPDATE tickets
	     SET status = 'redeemed', redeemed_at = $2
	     WHERE id = $1 AND status = 'issued'
	     RETURNING order_id`,
		ticketID, at,
	).Scan(&orderID)
	if err != nil {
		// No row means the conditional update matched nothing: the ticket
		// is unknown or already redeemed. The caller distinguishes the two.
		wrapped := wrapDBErr(op, err)
		if isNotFound(wrapped) {
			return false, nil
		}
		return false, wrapped
	}

	if _, err := db.Exec(ctx,
		`UPDATE orders
	     SET checked_in = true, check_in_time = $2
	     WHERE id = $1`,
		orderID, at,
	); err != nil {
		return false, wrapDBErr(op, err)
	}

	return true, nil
}
