package redemption

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/monitoring"
	"github.com/mintgate/mintgate/internal/repository"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
)

// ManualRedeemNonce bypasses secret matching, for staffed check-in where the
// organizer redeems on the holder's behalf.
const ManualRedeemNonce = "manual_redeem"

// Store is the redemption-facing slice of the backing store. Redeem flips
// the ticket and updates the owning order's check-in record in one
// transaction; it reports false when the ticket was not in the issued state.
type Store interface {
	Ticket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	Redeem(ctx context.Context, ticketID uuid.UUID, at time.Time) (bool, error)
}

type pgStore struct {
	store *postgresrepo.Store
}

func NewStore(store *postgresrepo.Store) Store {
	return &pgStore{store: store}
}

func (s *pgStore) Ticket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return s.store.Tickets().Get(ctx, id)
}

func (s *pgStore) Redeem(ctx context.Context, ticketID uuid.UUID, at time.Time) (bool, error) {
	return s.store.Tickets().Redeem(ctx, ticketID, at)
}

// Service is the redemption coordinator: the same exactly-once state machine
// as settlement, reduced to a single issued->redeemed transition.
type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Redeem consumes an issued ticket. The redeemed state is terminal: a second
// call with any secret returns ErrAlreadyRedeemed.
func (s *Service) Redeem(ctx context.Context, ticketID uuid.UUID, presentedSecret string) error {
	const op = "service.redemption.Redeem"

	t, err := s.store.Ticket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			monitoring.IncRedemption("not_found")
			return fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	if t.Status == domain.TicketRedeemed {
		monitoring.IncRedemption("already_redeemed")
		return fmt.Errorf("%s:%w", op, ErrAlreadyRedeemed)
	}

	if presentedSecret != ManualRedeemNonce &&
		subtle.ConstantTimeCompare([]byte(presentedSecret), []byte(t.RedemptionSecret)) != 1 {
		monitoring.IncRedemption("invalid_secret")
		return fmt.Errorf("%s:%w", op, ErrInvalidSecret)
	}

	flipped, err := s.store.Redeem(ctx, ticketID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !flipped {
		// Raced with another redeem between the read and the flip.
		monitoring.IncRedemption("already_redeemed")
		return fmt.Errorf("%s:%w", op, ErrAlreadyRedeemed)
	}

	monitoring.IncRedemption("redeemed")

	return nil
}
