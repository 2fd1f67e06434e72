package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/ledger"
	"github.com/mintgate/mintgate/internal/service/settlement"
	"github.com/mintgate/mintgate/internal/service/verification"
)

// OrderSource lists pending orders old enough to be worth polling.
type OrderSource interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// SignatureLister looks up ledger activity against a reference key.
type SignatureLister interface {
	SignaturesForAddress(ctx context.Context, pubkey string, limit int) ([]ledger.SignatureInfo, error)
}

// Settler is the settlement entry point the poller drives.
type Settler interface {
	SettleOrder(ctx context.Context, orderID uuid.UUID, signature, payerWallet string) (*settlement.OrderOutcome, error)
}

type PollerConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace is how old a pending order must be before the poller picks
	// it up, leaving the direct and webhook paths room to win first.
	Grace time.Duration
	// BatchSize caps how many orders one sweep inspects.
	BatchSize int
}

func (c *PollerConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Grace <= 0 {
		c.Grace = 60 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// Poller is the fallback trigger path: it sweeps stale pending orders,
// asks the ledger whether anything touched their reference keys and feeds
// found signatures into settlement. It never decides outcomes itself;
// settlement owns the state transition, so racing the other trigger paths
// is safe.
type Poller struct {
	orders  OrderSource
	ledger  SignatureLister
	settler Settler
	cfg     PollerConfig
	logger  *slog.Logger
}

func NewPoller(
	orders OrderSource,
	lister SignatureLister,
	settler Settler,
	cfg PollerConfig,
	logger *slog.Logger,
) *Poller {
	cfg.defaults()

	return &Poller{
		orders:  orders,
		ledger:  lister,
		settler: settler,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("poll sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one poll pass. Per-order failures are logged and skipped so
// one bad order cannot starve the rest of the batch.
func (p *Poller) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-p.cfg.Grace)

	stale, err := p.orders.ListStalePending(ctx, cutoff, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, o := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.pollOrder(ctx, &o)
	}

	return nil
}

func (p *Poller) pollOrder(ctx context.Context, o *domain.Order) {
	infos, err := p.ledger.SignaturesForAddress(ctx, o.Reference, 5)
	if err != nil {
		p.logger.Warn("signature lookup failed",
			"order_id", o.ID,
			"reference", o.Reference,
			"error", err,
		)
		return
	}

	// Newest first; take the first signature the chain reports as
	// succeeded and hand it to settlement for full verification.
	for _, info := range infos {
		if info.Failed {
			continue
		}

		out, err := p.settler.SettleOrder(ctx, o.ID, info.Signature, "")
		if err != nil {
			if rej, ok := verification.AsRejection(err); ok {
				p.logger.Info("polled settlement rejected",
					"order_id", o.ID,
					"signature", info.Signature,
					"reason", string(rej.Reason),
				)
			} else {
				p.logger.Warn("polled settlement failed",
					"order_id", o.ID,
					"signature", info.Signature,
					"error", err,
				)
			}
			return
		}

		p.logger.Info("polled settlement completed",
			"order_id", o.ID,
			"signature", info.Signature,
			"status", string(out.Status),
			"already_settled", out.AlreadySettled,
		)
		return
	}
}
