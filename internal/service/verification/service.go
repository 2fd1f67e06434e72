package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mintgate/mintgate/internal/ledger"
)

// Intent is the recorded payment expectation a transaction must satisfy.
// The client-supplied signature is used purely as a lookup key; everything
// the engine trusts comes from the ledger itself.
type Intent struct {
	Destination string
	// Amount in the smallest currency unit: lamports for native payments,
	// raw token units when SplToken is set.
	Amount   int64
	SplToken string
}

// Client is the ledger query capability the engine consumes.
type Client interface {
	Transaction(ctx context.Context, signature string) (*ledger.Transaction, error)
}

type Config struct {
	LookupTimeout time.Duration
}

// Service confirms that a claimed ledger transaction satisfies a payment
// intent. Verify is a pure function of ledger state with no side effects,
// so every trigger path may call it redundantly.
type Service struct {
	ledger Client
	cfg    Config
}

func New(ledgerClient Client, cfg Config) *Service {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}

	return &Service{
		ledger: ledgerClient,
		cfg:    cfg,
	}
}

// Verify returns nil when the transaction satisfies the intent, a
// *RejectionError for a definitive mismatch, and any other error for a
// transient lookup failure that the caller must not persist.
func (s *Service) Verify(ctx context.Context, intent Intent, signature string) error {
	const op = "service.verification.Verify"

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	tx, err := s.ledger.Transaction(ctx, signature)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &RejectionError{Reason: ReasonNotFound}
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	if !tx.Succeeded {
		return &RejectionError{Reason: ReasonNotFound}
	}

	idx := accountIndex(tx.AccountKeys, intent.Destination)
	if idx < 0 {
		return &RejectionError{Reason: ReasonDestinationMismatch}
	}

	var delta int64
	if intent.SplToken != "" {
		delta = tokenDelta(tx, intent.Destination, intent.SplToken)
	} else {
		if idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
			return &RejectionError{Reason: ReasonNotFound}
		}
		delta = tx.PostBalances[idx] - tx.PreBalances[idx]
	}

	// Amounts are integers in smallest units: exact equality, no tolerance.
	if delta != intent.Amount {
		return &RejectionError{Reason: ReasonAmountMismatch}
	}

	return nil
}

func accountIndex(keys []string, account string) int {
	for i, k := range keys {
		if k == account {
			return i
		}
	}
	return -1
}

// tokenDelta computes the token-account balance change for the destination
// owner and mint across the transaction.
func tokenDelta(tx *ledger.Transaction, owner, mint string) int64 {
	var pre, post int64
	for _, b := range tx.PreTokenBalances {
		if b.Owner == owner && b.Mint == mint {
			pre += b.Amount
		}
	}
	for _, b := range tx.PostTokenBalances {
		if b.Owner == owner && b.Mint == mint {
			post += b.Amount
		}
	}
	return post - pre
}
