package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintgate/mintgate/internal/domain"
)

type PactRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PactRepo) With(db DB) *PactRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PactRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a pact and its ordered participants. Reference keys are
// minted by the caller in the same transaction.
func (r *PactRepo) Create(ctx context.Context, p *domain.Pact) error {
	const op = "postgres.PactRepo.Create"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO pacts(id, title, receiver_wallet)
	     VALUES ($1, $2, $3)`,
		p.ID, p.Title, p.ReceiverWallet,
	); err != nil {
		return wrapDBErr(op, err)
	}

	batch := &pgx.Batch{}
	for _, part := range p.Participants {
		batch.Queue(
			`INSERT INTO pact_participants(
	            pact_id, idx, wallet, amount_lamports, reference, paid
	         )
	         VALUES ($1, $2, NULLIF($3, ''), $4, $5, false)`,
			p.ID, part.Idx, part.Wallet, part.AmountLamports, part.Reference,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *PactRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Pact, error) {
	const op = "postgres.PactRepo.Get"

	db := r.handle()

	var p domain.Pact
	err := db.QueryRow(ctx,
		`SELECT id, title, receiver_wallet, created_at
	     FROM pacts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.ReceiverWallet, &p.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT pact_id, idx, COALESCE(wallet, ''), amount_lamports,
	            reference, paid, COALESCE(paid_signature, '')
	     FROM pact_participants
	     WHERE pact_id = $1
	     ORDER BY idx`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var part domain.Participant
		if err := rows.Scan(
			&part.PactID, &part.Idx, &part.Wallet, &part.AmountLamports,
			&part.Reference, &part.Paid, &part.PaidSignature,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		p.Participants = append(p.Participants, part)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *PactRepo) Receiver(ctx context.Context, pactID uuid.UUID) (string, error) {
	const op = "postgres.PactRepo.Receiver"

	db := r.handle()

	var receiver string
	err := db.QueryRow(ctx,
		`SELECT receiver_wallet FROM pacts WHERE id = $1`,
		pactID,
	).Scan(&receiver)
	if err != nil {
		return "", wrapDBErr(op, err)
	}

	return receiver, nil
}

func (r *PactRepo) Participant(ctx context.Context, pactID uuid.UUID, idx int) (*domain.Participant, error) {
	const op = "postgres.PactRepo.Participant"

	db := r.handle()

	var part domain.Participant
	err := db.QueryRow(ctx,
		`SELECT pact_id, idx, COALESCE(wallet, ''), amount_lamports,
	            reference, paid, COALESCE(paid_signature, '')
	     FROM pact_participants
	     WHERE pact_id = $1 AND idx = $2`,
		pactID, idx,
	).Scan(
		&part.PactID, &part.Idx, &part.Wallet, &part.AmountLamports,
		&part.Reference, &part.Paid, &part.PaidSignature,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &part, nil
}
