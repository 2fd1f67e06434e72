package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mintgate/mintgate/internal/repository"
	postgresrepo "github.com/mintgate/mintgate/internal/repository/postgres"
	redisrepo "github.com/mintgate/mintgate/internal/repository/redis"
	"github.com/mintgate/mintgate/internal/uow"
)

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	uow   *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache) *Service {
	return &Service{
		store: store,
		cache: cache,
		uow:   uow.NewUoW(store),
	}
}

// CreateEvent creates an event with its capacity and returns its ID. The
// sales counter is owned by settlement; this only sets the ceiling.
func (s *Service) CreateEvent(
	ctx context.Context,
	title, venue string,
	startsAt time.Time,
	capacity int,
) (int64, error) {
	const op = "service.admin.CreateEvent"

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		var err error
		id, err = s.store.Events().With(tx).Create(ctx, title, venue, startsAt, capacity)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrEventConflict)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateEvent(ctx, id)
			}
		})

		return nil
	})

	return id, err
}
