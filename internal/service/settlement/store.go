package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/mintgate/mintgate/internal/domain"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
)

// Store is the settlement-facing slice of the backing store. Every Settle*
// method is a single atomic transaction whose conditional write on the
// pending state is the exactly-once guard; it reports false when the guard
// did not match.
type Store interface {
	Order(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error)
	SettleOrder(ctx context.Context, order *domain.Order, signature, payerWallet string, tickets []domain.Ticket) (bool, error)
	FailOrder(ctx context.Context, orderID uuid.UUID, signature string) error
	Participant(ctx context.Context, pactID uuid.UUID, idx int) (*domain.Participant, error)
	PactReceiver(ctx context.Context, pactID uuid.UUID) (string, error)
	SettleParticipant(ctx context.Context, pactID uuid.UUID, idx int, signature, payerWallet, reference string) (bool, error)
}

type pgStore struct {
	store *postgresrepo.Store
}

// NewStore adapts the postgres store to the settlement Store contract.
func NewStore(store *postgresrepo.Store) Store {
	return &pgStore{store: store}
}

func (s *pgStore) Order(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.store.Orders().Get(ctx, id)
}

func (s *pgStore) TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	return s.store.Tickets().ListByOrder(ctx, orderID)
}

func (s *pgStore) SettleOrder(
	ctx context.Context,
	order *domain.Order,
	signature, payerWallet string,
	tickets []domain.Ticket,
) (bool, error) {
	return s.store.Settlement().SettleOrder(ctx, order, signature, payerWallet, tickets)
}

func (s *pgStore) FailOrder(ctx context.Context, orderID uuid.UUID, signature string) error {
	return s.store.Settlement().FailOrder(ctx, orderID, signature)
}

func (s *pgStore) Participant(ctx context.Context, pactID uuid.UUID, idx int) (*domain.Participant, error) {
	return s.store.Pacts().Participant(ctx, pactID, idx)
}

func (s *pgStore) PactReceiver(ctx context.Context, pactID uuid.UUID) (string, error) {
	return s.store.Pacts().Receiver(ctx, pactID)
}

func (s *pgStore) SettleParticipant(
	ctx context.Context,
	pactID uuid.UUID,
	idx int,
	signature, payerWallet, reference string,
) (bool, error) {
	return s.store.Settlement().SettleParticipant(ctx, pactID, idx, signature, payerWallet, reference)
}
