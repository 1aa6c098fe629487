package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Postgres repositories expect a pgx.Tx or nil.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a single database transaction. The handle passed to
// fn must be forwarded to every repository call that should join the transaction.
// Repositories treat a nil Tx as "use the pool".
//
// Usage:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		if err := subs.Upsert(ctx, tx, s); err != nil {
//			return err
//		}
//		return ents.Grant(ctx, tx, e)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

type txHooksKey struct{}

// TxHooks holds callbacks deferred until the surrounding transaction commits.
type TxHooks struct {
	fns []func(context.Context)
}

// WithTxHooks returns a context that collects AfterCommit callbacks into the returned hooks.
// TransactionManager implementations call Run once the commit succeeds and drop the hooks
// on rollback.
func WithTxHooks(ctx context.Context) (context.Context, *TxHooks) {
	h := &TxHooks{}
	return context.WithValue(ctx, txHooksKey{}, h), h
}

// Run invokes the collected callbacks in registration order.
func (h *TxHooks) Run(ctx context.Context) {
	for _, fn := range h.fns {
		fn(ctx)
	}
	h.fns = nil
}

// AfterCommit defers fn until the transaction carried by ctx commits. Outside a
// transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if h, ok := ctx.Value(txHooksKey{}).(*TxHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn(ctx)
}
