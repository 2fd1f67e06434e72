package pacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/ledger"
	"github.com/mintgate/mintgate/internal/repository"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
	"github.com/mintgate/mintgate/internal/service/registry"
	"github.com/mintgate/mintgate/internal/uow"
)

type Service struct {
	store *postgresrepo.Store
	uow   *uow.UoW
}

func New(store *postgresrepo.Store) *Service {
	return &Service{
		store: store,
		uow:   uow.NewUoW(store),
	}
}

type ParticipantParams struct {
	Wallet         string
	AmountLamports int64
}

type CreateParams struct {
	Title          string
	ReceiverWallet string
	Participants   []ParticipantParams
}

type ParticipantResult struct {
	Idx        int
	Reference  string
	PaymentURL string
}

type CreateResult struct {
	PactID       uuid.UUID
	Participants []ParticipantResult
}

// Create records a pact with its ordered participants, minting one
// reference key per participant in the same transaction. Each participant
// gets their own payment-link URL against the shared receiver wallet.
func (s *Service) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	const op = "service.pacts.Create"

	if len(p.Participants) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoParticipants)
	}

	pact := &domain.Pact{
		ID:             uuid.New(),
		Title:          p.Title,
		ReceiverWallet: p.ReceiverWallet,
	}

	results := make([]ParticipantResult, 0, len(p.Participants))
	for i, pp := range p.Participants {
		reference, err := registry.NewKey()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		pact.Participants = append(pact.Participants, domain.Participant{
			PactID:         pact.ID,
			Idx:            i,
			Wallet:         pp.Wallet,
			AmountLamports: pp.AmountLamports,
			Reference:      reference,
		})

		payURL, err := ledger.PaymentRequest{
			Recipient: p.ReceiverWallet,
			Amount:    pp.AmountLamports,
			Reference: reference,
			Message:   fmt.Sprintf("Pact %s share %d", pact.ID, i),
		}.Encode()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		results = append(results, ParticipantResult{
			Idx:        i,
			Reference:  reference,
			PaymentURL: payURL,
		})
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Pacts().With(tx).Create(ctx, pact); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for _, part := range pact.Participants {
			target := domain.ReferenceTarget{
				Kind:           domain.ReferenceParticipant,
				PactID:         pact.ID,
				ParticipantIdx: part.Idx,
			}
			if err := s.store.References().With(tx).Mint(ctx, part.Reference, target); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CreateResult{PactID: pact.ID, Participants: results}, nil
}

// Get retrieves a pact with its participants' paid states.
func (s *Service) Get(ctx context.Context, pactID uuid.UUID) (*domain.Pact, error) {
	const op = "service.pacts.Get"

	p, err := s.store.Pacts().Get(ctx, pactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPactNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}
