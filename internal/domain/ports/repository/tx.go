package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories accept nil for the non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a database transaction.
//
// Use-cases call repositories with the ctx and tx handed to fn; an error
// returned from fn rolls the transaction back.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		o, err := orders.FindByPaymentTransactionID(ctx, tx, txnID)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
	// AdvisoryLock takes a transaction-scoped advisory lock on key. It blocks
	// until the lock is granted and is released on commit/rollback.
	AdvisoryLock(ctx context.Context, tx Tx, key string) error
}
