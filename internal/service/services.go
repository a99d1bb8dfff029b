package service

import (
	"log/slog"
	"time"

	redisx "github.com/parkd/parkd/internal/redis"
	postgres "github.com/parkd/parkd/internal/repository/postgres"
	redis "github.com/parkd/parkd/internal/repository/redis"
	"github.com/parkd/parkd/internal/service/admin"
	"github.com/parkd/parkd/internal/service/allocation"
	"github.com/parkd/parkd/internal/service/billing"
	"github.com/parkd/parkd/internal/service/ledger"
	"github.com/parkd/parkd/internal/service/monthly"
)

type Services struct {
	Allocation *allocation.Service
	Billing    *billing.Service
	Ledger     *ledger.Service
	Admin      *admin.Service
	Monthly    *monthly.Service
}

type Config struct {
	Ledger   ledger.Config
	Monthly  monthly.Config
	Timezone *time.Location
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redisx.AreasPubSub,
	limiter *redis.SlidingWindowLimiter,
	notifier monthly.Notifier,
	log *slog.Logger,
	cfg Config,
) *Services {
	billingSvc := billing.NewService(store, cfg.Timezone)

	return &Services{
		Allocation: allocation.New(store, cache, pubsub, limiter, billingSvc, log),
		Billing:    billingSvc,
		Ledger:     ledger.New(store, cache, cfg.Ledger),
		Admin:      admin.New(store, cache, pubsub),
		Monthly:    monthly.New(store, notifier, cfg.Monthly, log),
	}
}
