package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/monitoring"
	"github.com/mintgate/mintgate/internal/repository"
	redisrepo "github.com/mintgate/mintgate/internal/repository/redis"
	"github.com/mintgate/mintgate/internal/service/verification"
)

// Verifier re-derives payment truth from the ledger. The client-claimed
// signature is only a lookup key.
type Verifier interface {
	Verify(ctx context.Context, intent verification.Intent, signature string) error
}

// Service is the single settlement coordinator shared by all trigger paths
// (direct call, webhook, poller). Racing callers are serialized by the
// store's conditional writes, not by anything here.
type Service struct {
	store    Store
	verifier Verifier
	cache    *redisrepo.Cache
	pubsub   *redisrepo.SettlementsPubSub
}

func New(
	store Store,
	verifier Verifier,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SettlementsPubSub,
) *Service {
	return &Service{
		store:    store,
		verifier: verifier,
		cache:    cache,
		pubsub:   pubsub,
	}
}

// OrderOutcome is the result of an order settlement attempt. AlreadySettled
// is success-shaped: a racing caller that lost the conditional write must
// not report a spurious failure to the user.
type OrderOutcome struct {
	AlreadySettled bool
	Status         domain.OrderStatus
	TicketIDs      []uuid.UUID
}

// SettleOrder verifies the claimed signature against the order's recorded
// expectations and, if it holds, performs the pending->paid transition with
// ticket minting and counter update in one store transaction.
//
// A definitive rejection marks the order failed (terminal) and is returned
// as a *verification.RejectionError. A transient ledger or store failure is
// returned as any other error and leaves the order pending for a later
// trigger path to retry.
func (s *Service) SettleOrder(
	ctx context.Context,
	orderID uuid.UUID,
	signature, payerWallet string,
) (*OrderOutcome, error) {
	const op = "service.settlement.SettleOrder"

	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if order.Status != domain.OrderPending {
		return s.alreadySettled(ctx, order)
	}

	intent := verification.Intent{
		Destination: order.ReceiverWallet,
		Amount:      order.AmountLamports,
		SplToken:    order.SplToken,
	}

	if err := s.verifier.Verify(ctx, intent, signature); err != nil {
		if rej, ok := verification.AsRejection(err); ok {
			if failErr := s.store.FailOrder(ctx, orderID, signature); failErr != nil {
				monitoring.IncSettlement("order", monitoring.OutcomeTransient)
				return nil, fmt.Errorf("%s:%w", op, failErr)
			}

			monitoring.IncSettlement("order", monitoring.OutcomeFailed)
			return nil, fmt.Errorf("%s:%w", op, rej)
		}

		monitoring.IncSettlement("order", monitoring.OutcomeTransient)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	owner := payerWallet
	if owner == "" {
		owner = order.BuyerWallet
	}

	tickets := make([]domain.Ticket, 0, order.Quantity)
	for i := 0; i < order.Quantity; i++ {
		secret, err := newRedemptionSecret()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		tickets = append(tickets, domain.Ticket{
			ID:               uuid.New(),
			OrderID:          order.ID,
			EventID:          order.EventID,
			OwnerWallet:      owner,
			Status:           domain.TicketIssued,
			RedemptionSecret: secret,
		})
	}

	settled, err := s.store.SettleOrder(ctx, order, signature, payerWallet, tickets)
	if err != nil {
		monitoring.IncSettlement("order", monitoring.OutcomeTransient)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !settled {
		// Lost the race: another trigger path settled first.
		fresh, err := s.store.Order(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return s.alreadySettled(ctx, fresh)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, order.EventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishOrderPaid(ctx, order.ID.String(), order.EventID)
	}

	monitoring.IncSettlement("order", monitoring.OutcomePaid)

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}

	return &OrderOutcome{Status: domain.OrderPaid, TicketIDs: ids}, nil
}

func (s *Service) alreadySettled(ctx context.Context, order *domain.Order) (*OrderOutcome, error) {
	const op = "service.settlement.alreadySettled"

	out := &OrderOutcome{
		AlreadySettled: true,
		Status:         order.Status,
	}

	if order.Status == domain.OrderPaid {
		tickets, err := s.store.TicketsByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		for _, t := range tickets {
			out.TicketIDs = append(out.TicketIDs, t.ID)
		}
	}

	monitoring.IncSettlement("order", monitoring.OutcomeAlreadySettled)

	return out, nil
}

// ParticipantOutcome is the result of a pact participant settlement attempt.
type ParticipantOutcome struct {
	AlreadySettled bool
}

// SettleParticipant is the group-payment variant: the unit of settlement is
// one participant, there is no ticket creation, and the paid flip plus the
// reference key consumption commit together. Rejections are not persisted:
// a participant has no failed state and stays payable.
func (s *Service) SettleParticipant(
	ctx context.Context,
	pactID uuid.UUID,
	idx int,
	signature, payerWallet string,
) (*ParticipantOutcome, error) {
	const op = "service.settlement.SettleParticipant"

	part, err := s.store.Participant(ctx, pactID, idx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrParticipantNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if part.Paid {
		monitoring.IncSettlement("participant", monitoring.OutcomeAlreadySettled)
		return &ParticipantOutcome{AlreadySettled: true}, nil
	}

	receiver, err := s.store.PactReceiver(ctx, pactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPactNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	intent := verification.Intent{
		Destination: receiver,
		Amount:      part.AmountLamports,
	}

	if err := s.verifier.Verify(ctx, intent, signature); err != nil {
		if rej, ok := verification.AsRejection(err); ok {
			monitoring.IncSettlement("participant", monitoring.OutcomeFailed)
			return nil, fmt.Errorf("%s:%w", op, rej)
		}

		monitoring.IncSettlement("participant", monitoring.OutcomeTransient)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	settled, err := s.store.SettleParticipant(ctx, pactID, idx, signature, payerWallet, part.Reference)
	if err != nil {
		monitoring.IncSettlement("participant", monitoring.OutcomeTransient)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !settled {
		monitoring.IncSettlement("participant", monitoring.OutcomeAlreadySettled)
		return &ParticipantOutcome{AlreadySettled: true}, nil
	}

	if s.pubsub != nil {
		_ = s.pubsub.PublishParticipantPaid(ctx, pactID.String(), idx)
	}

	monitoring.IncSettlement("participant", monitoring.OutcomePaid)

	return &ParticipantOutcome{}, nil
}

func newRedemptionSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
