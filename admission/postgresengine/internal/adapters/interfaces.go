package adapters

import "context"

// DBAdapter defines the database operations needed by the admission store.
type DBAdapter interface {
	// Query runs on the primary.
	Query(ctx context.Context, query string, args ...any) (DBRows, error)

	// QueryReplica runs on the replica if one is configured, otherwise on the primary.
	QueryReplica(ctx context.Context, query string, args ...any) (DBRows, error)

	Exec(ctx context.Context, query string, args ...any) (DBResult, error)

	// BeginTx starts a transaction on the primary.
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx defines the operations available inside one transaction.
type DBTx interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
