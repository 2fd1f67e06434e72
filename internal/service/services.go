package service

import (
	postgres "github.com/mintgate/mintgate/internal/repository/postgres"
	redis "github.com/mintgate/mintgate/internal/repository/redis"
	"github.com/mintgate/mintgate/internal/service/admin"
	"github.com/mintgate/mintgate/internal/service/orders"
	"github.com/mintgate/mintgate/internal/service/pacts"
	"github.com/mintgate/mintgate/internal/service/query"
	"github.com/mintgate/mintgate/internal/service/redemption"
	"github.com/mintgate/mintgate/internal/service/registry"
	"github.com/mintgate/mintgate/internal/service/settlement"
	"github.com/mintgate/mintgate/internal/service/verification"
)

type Services struct {
	Verification *verification.Service
	Settlement   *settlement.Service
	Redemption   *redemption.Service
	Registry     *registry.Service
	Orders       *orders.Service
	Pacts        *pacts.Service
	Query        *query.Service
	Admin        *admin.Service
}

type Config struct {
	Verification verification.Config
	Orders       orders.Config
	Query        query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.SettlementsPubSub,
	ledgerClient verification.Client,
	cfg Config,
) *Services {
	verifier := verification.New(ledgerClient, cfg.Verification)

	return &Services{
		Verification: verifier,
		Settlement:   settlement.New(settlement.NewStore(store), verifier, cache, pubsub),
		Redemption:   redemption.New(redemption.NewStore(store)),
		Registry:     registry.New(store),
		Orders:       orders.New(store, cfg.Orders),
		Pacts:        pacts.New(store),
		Query:        query.New(store, cache, cfg.Query),
		Admin:        admin.New(store, cache),
	}
}
