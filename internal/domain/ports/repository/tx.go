package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a store transaction and hands the
// transaction handle to fn as tx. Repository methods accept that handle (or
// nil for the non-transactional path) so multi-row writes such as
// "replace blocks + upsert chunk + enqueue continuation" commit together.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
