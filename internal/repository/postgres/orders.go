package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a pending order. The reference key is inserted separately
// (see ReferenceRepo) inside the same transaction.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	const op = "postgres.OrderRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO orders(
	        id, event_id, buyer_wallet, receiver_wallet, amount_lamports,
	        spl_token, reference, quantity, status, checked_in
	     )
	     VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, 'pending', false)`,
		o.ID, o.EventID, o.BuyerWallet, o.ReceiverWallet, o.AmountLamports,
		o.SplToken, o.Reference, o.Quantity,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "postgres.OrderRepo.Get"

	db := r.handle()

	var o domain.Order
	err := db.QueryRow(ctx,
		`SELECT id, event_id, COALESCE(buyer_wallet, ''), receiver_wallet,
	            amount_lamports, COALESCE(spl_token, ''), reference, quantity,
	            status, COALESCE(tx_signature, ''), checked_in, check_in_time,
	            created_at
	     FROM orders WHERE id = $1`,
		id,
	).Scan(
		&o.ID, &o.EventID, &o.BuyerWallet, &o.ReceiverWallet,
		&o.AmountLamports, &o.SplToken, &o.Reference, &o.Quantity,
		&o.Status, &o.TxSignature, &o.CheckedIn, &o.CheckInTime,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

// ListStalePending returns pending orders created before the cutoff. The
// polling trigger uses it to find intents whose payment may have landed
// without either the direct call or the webhook observing it.
func (r *OrderRepo) ListStalePending(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]domain.Order, error) {
	const op = "postgres.OrderRepo.ListStalePending"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, event_id, COALESCE(buyer_wallet, ''), receiver_wallet,
	            amount_lamports, COALESCE(spl_token, ''), reference, quantity,
	            status, COALESCE(tx_signature, ''), checked_in, check_in_time,
	            created_at
	     FROM orders
	     WHERE status = 'pending' AND created_at < $1
	     ORDER BY created_at
	     LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.EventID, &o.BuyerWallet, &o.ReceiverWallet,
			&o.AmountLamports, &o.SplToken, &o.Reference, &o.Quantity,
			&o.Status, &o.TxSignature, &o.CheckedIn, &o.CheckInTime,
			&o.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return orders, nil
}
