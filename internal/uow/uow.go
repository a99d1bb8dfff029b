package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgres "github.com/parkd/parkd/internal/repository/postgres"
)

// AfterCommit runs once the enclosing transaction has committed. Cache
// invalidation and area-change publication go through these hooks so
// they never fire for an occupancy change that rolled back.
type AfterCommit func(ctx context.Context)

// UoW wraps Store.RunTx with after-commit hook collection.
type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside a serializable transaction, then executes the
// registered after-commit hooks in order.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts is Do with explicit transaction options.
func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, opts, func(ctx context.Context, tx postgres.DB) error {
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
