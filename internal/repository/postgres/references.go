package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

// ReferenceRepo is the reference registry: it maps one-time on-chain
// reference keys to the intent they were minted for. Keys are minted inside
// the intent's creation transaction and consumed inside its settlement
// transaction, so a consumed key can never point at an unpaid intent.
type ReferenceRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReferenceRepo) With(db DB) *ReferenceRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReferenceRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Mint records a fresh reference key for an order or a pact participant.
// The primary key on reference guarantees at most one unresolved key per
// minting.
func (r *ReferenceRepo) Mint(ctx context.Context, reference string, target domain.ReferenceTarget) error {
	const op = "postgres.ReferenceRepo.Mint"

	db := r.handle()

	var (
		orderID *uuid.UUID
		pactID  *uuid.UUID
		idx     *int
	)
	switch target.Kind {
	case domain.ReferenceOrder:
		orderID = &target.OrderID
	case domain.ReferenceParticipant:
		pactID = &target.PactID
		idx = &target.ParticipantIdx
	}

	_, err := db.Exec(ctx,
		`INSERT INTO payment_references(
	        reference, kind, order_id, pact_id, participant_idx
	     )
	     VALUES ($1, $2, $3, $4, $5)`,
		reference, target.Kind, orderID, pactID, idx,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Resolve looks up the intent a reference key was minted for. A key that
// has already been consumed resolves as not found, which is what makes
// replayed webhook deliveries harmless at the registry level.
func (r *ReferenceRepo) Resolve(ctx context.Context, reference string) (*domain.ReferenceTarget, error) {
	const op = "postgres.ReferenceRepo.Resolve"

	db := r.handle()

	var (
		t       domain.ReferenceTarget
		orderID *uuid.UUID
		pactID  *uuid.UUID
		idx     *int
	)
	err := db.QueryRow(ctx,
		`SELECT kind, order_id, pact_id, participant_idx
	     FROM payment_references WHERE reference = $1`,
		reference,
	).Scan(&t.Kind, &orderID, &pactID, &idx)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if orderID != nil {
		t.OrderID = *orderID
	}
	if pactID != nil {
		t.PactID = *pactID
	}
	if idx != nil {
		t.ParticipantIdx = *idx
	}

	return &t, nil
}

// Consume deletes a resolved reference key. Idempotent: deleting an absent
// key is not an error.
func (r *ReferenceRepo) Consume(ctx context.Context, reference string) error {
	const op = "postgres.ReferenceRepo.Consume"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`DELETE FROM payment_references WHERE reference = $1`,
		reference,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
