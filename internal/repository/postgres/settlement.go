package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

// settleTxRetries bounds serialization-failure retries per settlement.
const settleTxRetries = 3

// SettlementRepo performs the exactly-once state transitions. Every flip is
// a conditional UPDATE on the pending state executed inside one serializable
// transaction together with its dependent writes, so only one of any number
// of racing callers observes pending and proceeds; the rest see zero rows
// affected and report an already-settled outcome.
type SettlementRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SettlementRepo) With(db DB) *SettlementRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SettlementRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *SettlementRepo) store() *Store {
	return &Store{pool: r.pool}
}

// SettleOrder transitions an order from pending to paid and, in the same
// transaction, inserts the given tickets, increments the event's sales
// counter by the order quantity, and consumes the order's reference key.
// It returns false when the order was no longer pending.
func (r *SettlementRepo) SettleOrder(
	ctx context.Context,
	order *domain.Order,
	signature, payerWallet string,
	tickets []domain.Ticket,
) (bool, error) {
	if r.db != nil {
		return r.settleOrderCore(ctx, r.db, order, signature, payerWallet, tickets)
	}

	return r.runSettleTx(ctx, func(ctx context.Context, tx DB) (bool, error) {
		return r.settleOrderCore(ctx, tx, order, signature, payerWallet, tickets)
	})
}

// runSettleTx runs fn in a serializable transaction, retrying a few times
// on serialization failures; concurrent settlements against the same event
// row make those expected.
func (r *SettlementRepo) runSettleTx(
	ctx context.Context,
	fn func(ctx context.Context, tx DB) (bool, error),
) (bool, error) {
	var settled bool
	var err error

	for attempt := 0; attempt < settleTxRetries; attempt++ {
		err = r.store().RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
			var txErr error
			settled, txErr = fn(ctx, tx)
			return txErr
		})
		if err == nil || !IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return false, err
	}

	return settled, nil
}

func (r *SettlementRepo) settleOrderCore(
	ctx context.Context,
	db DB,
	order *domain.Order,
	signature, payerWallet string,
	tickets []domain.Ticket,
) (bool, error) {
	const op = "postgres.SettlementRepo.settleOrderCore"

	tag, err := db.Exec(ctx,
		`UPDATE orders
	     SET status = 'paid',
	         tx_signature = $2,
	         buyer_wallet = COALESCE(NULLIF($3, ''), buyer_wallet)
	     WHERE id = $1 AND status = 'pending'`,
		order.ID, signature, payerWallet,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets(
	            id, order_id, event_id, owner_wallet, status, redemption_secret
	         )
	         VALUES ($1, $2, $3, $4, 'issued', $5)`,
			t.ID, t.OrderID, t.EventID, t.OwnerWallet, t.RedemptionSecret,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return false, wrapDBErr(op, err)
	}

	if _, err := db.Exec(ctx,
		`UPDATE events
	     SET sales_count = sales_count + $2
	     WHERE id = $1`,
		order.EventID, len(tickets),
	); err != nil {
		return false, wrapDBErr(op, err)
	}

	if err := r.store().References().With(db).Consume(ctx, order.Reference); err != nil {
		return false, err
	}

	return true, nil
}

// FailOrder transitions an order from pending to failed, recording the
// rejected signature. A no-op when the order has already left pending.
func (r *SettlementRepo) FailOrder(ctx context.Context, orderID uuid.UUID, signature string) error {
	const op = "postgres.SettlementRepo.FailOrder"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`UPDATE orders
	     SET status = 'failed', tx_signature = $2
	     WHERE id = $1 AND status = 'pending'`,
		orderID, signature,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// SettleParticipant flips a pact participant's paid flag and consumes its
// reference key in one transaction, so a crash between the two cannot leave
// a consumed key pointing at an unpaid participant. Returns false when the
// participant was already paid.
func (r *SettlementRepo) SettleParticipant(
	ctx context.Context,
	pactID uuid.UUID,
	idx int,
	signature, payerWallet, reference string,
) (bool, error) {
	if r.db != nil {
		return r.settleParticipantCore(ctx, r.db, pactID, idx, signature, payerWallet, reference)
	}

	return r.runSettleTx(ctx, func(ctx context.Context, tx DB) (bool, error) {
		return r.settleParticipantCore(ctx, tx, pactID, idx, signature, payerWallet, reference)
	})
}

func (r *SettlementRepo) settleParticipantCore(
	ctx context.Context,
	db DB,
	pactID uuid.UUID,
	idx int,
	signature, payerWallet, reference string,
) (bool, error) {
	const op = "postgres.SettlementRepo.settleParticipantCore"

	tag, err := db.Exec(ctx,
		`UPDATE pact_participants
	     SET paid = true,
	         paid_signature = $3,
	         wallet = COALESCE(NULLIF($4, ''), wallet)
	     WHERE pact_id = $1 AND idx = $2 AND paid = false`,
		pactID, idx, signature, payerWallet,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := r.store().References().With(db).Consume(ctx, reference); err != nil {
		return false, err
	}

	return true, nil
}
