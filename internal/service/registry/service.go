// Package registry manages one-time reference keys: unguessable public
// identifiers embedded as read-only accounts in payment requests so an
// observed ledger transaction can be correlated back to an intent without
// knowing the payer upfront.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/repository"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
)

var ErrReferenceNotFound = errors.New("reference not found")

// NewKey mints a fresh reference key. The key carries no value and is used
// purely for lookup, so uniqueness and unguessability are all that matter.
func NewKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type Service struct {
	store *postgresrepo.Store
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store}
}

// Resolve maps an observed on-chain reference key to its settlement target.
// Consumed or never-minted keys resolve as ErrReferenceNotFound; callers
// treat that as "not ours", not as a failure.
func (s *Service) Resolve(ctx context.Context, reference string) (*domain.ReferenceTarget, error) {
	const op = "service.registry.Resolve"

	target, err := s.store.References().Resolve(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReferenceNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return target, nil
}
