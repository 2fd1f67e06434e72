package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/repository"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
	redisrepo "github.com/mintgate/mintgate/internal/repository/redis"
)

type Config struct {
	AvailabilityTTL time.Duration
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// Availability returns the event's capacity and sales counters, cached
// briefly; settlement invalidates the cache after every commit.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.EventAvailability, error) {
	const op = "service.query.Availability"

	load := func(ctx context.Context) (*domain.EventAvailability, error) {
		return s.store.Events().Availability(ctx, eventID)
	}

	var (
		a   *domain.EventAvailability
		err error
	)
	if s.cache != nil {
		a, err = redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisrepo.KeyEventAvailability(eventID),
			s.cfg.AvailabilityTTL,
			load,
		)
	} else {
		a, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}
