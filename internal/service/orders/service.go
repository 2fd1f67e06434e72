package orders

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

type Config struct {
	// Label and message rendered into payment-link URLs.
	PaymentLabel string
}

type Service struct {
	store *postgresrepo.Store
	uow   *uow.UoW
	cfg   Config
}

func New(store *postgresrepo.Store, cfg Config) *Service {
	return &Service{
		store: store,
		uow:   uow.NewUoW(store),
		cfg:   cfg,
	}
}

type CreateParams struct {
	EventID        int64
	BuyerWallet    string
	ReceiverWallet string
	AmountLamports int64
	SplToken       string
	Quantity       int
}

type CreateResult struct {
	OrderID    uuid.UUID
	Reference  string
	PaymentURL string
}

// Create records a pending payment intent, mints its reference key in the
// same transaction, and returns the payment-link URL the buyer's wallet
// should execute.
func (s *Service) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	const op = "service.orders.Create"

	reference, err := registry.NewKey()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	order := &domain.Order{
		ID:             uuid.New(),
		EventID:        p.EventID,
		BuyerWallet:    p.BuyerWallet,
		ReceiverWallet: p.ReceiverWallet,
		AmountLamports: p.AmountLamports,
		SplToken:       p.SplToken,
		Reference:      reference,
		Quantity:       p.Quantity,
		Status:         domain.OrderPending,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		avail, err := s.store.Events().With(tx).Availability(ctx, p.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrEventNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		if avail.Remaining < p.Quantity {
			return fmt.Errorf("%s:%w", op, ErrSoldOut)
		}

		if err := s.store.Orders().With(tx).Create(ctx, order); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		target := domain.ReferenceTarget{
			Kind:    domain.ReferenceOrder,
			OrderID: order.ID,
		}
		if err := s.store.References().With(tx).Mint(ctx, reference, target); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	payURL, err := ledger.PaymentRequest{
		Recipient: p.ReceiverWallet,
		Amount:    p.AmountLamports,
		Reference: reference,
		SplToken:  p.SplToken,
		Label:     s.cfg.PaymentLabel,
		Message:   fmt.Sprintf("Order %s", order.ID),
	}.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &CreateResult{
		OrderID:    order.ID,
		Reference:  reference,
		PaymentURL: payURL,
	}, nil
}

// GetWithTickets retrieves an order along with its issued tickets.
func (s *Service) GetWithTickets(ctx context.Context, orderID uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "service.orders.GetWithTickets"

	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tickets, err := s.store.Tickets().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &domain.OrderWithTickets{Order: *o, Tickets: tickets}, nil
}
