package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/admission/postgresengine/internal/adapters"
)

const (
	defaultInventoryTableName  = "inventory"
	defaultObligationTableName = "obligations"
	dialectPostgres            = "postgres"

	colResourceID      = "resource_id"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colObligationID    = "obligation_id"
	colActorID         = "actor_id"
	colStatus          = "status"
	colCreatedAt       = "created_at"
	colDueAt           = "due_at"
	colReturnedAt      = "returned_at"

	actionBegin            = "begin"
	actionSetLockTimeout   = "set_lock_timeout"
	actionLockInventory    = "lock_inventory"
	actionLoadInventory    = "load_inventory"
	actionSaveInventory    = "save_inventory"
	actionPutInventory     = "put_inventory"
	actionLockActor        = "lock_actor"
	actionQueryObligations = "query_obligations"
	actionInsertObligation = "insert_obligation"
	actionLockObligation   = "lock_obligation"
	actionUpdateObligation = "update_obligation"
	actionMarkOverdue      = "mark_overdue"
	actionCommit           = "commit"
	actionTransaction      = "transaction"
)

// querier is what both the connection and a transaction offer.
type querier interface {
	Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (adapters.DBResult, error)
}

// replicaReads routes Query to the replica of the adapter.
type replicaReads struct {
	adapters.DBAdapter
}

func (r replicaReads) Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error) {
	return r.QueryReplica(ctx, query, args...)
}

// Store is the PostgreSQL admission.Store.
type Store struct {
	db                  adapters.DBAdapter
	inventoryTableName  string
	obligationTableName string
	lockTimeout         time.Duration
	logger              admission.Logger
	contextualLogger    admission.ContextualLogger
	metricsCollector    admission.MetricsCollector
	tracingCollector    admission.TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Store, error) {
	if pool == nil {
		return nil, admission.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(pool), options...)
}

// NewStoreFromPGXPoolWithReplica creates a new Store that serves eventually consistent reads from replica.
// Transactions always run on the primary.
func NewStoreFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if primary == nil {
		return nil, admission.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, admission.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, admission.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:                  db,
		inventoryTableName:  defaultInventoryTableName,
		obligationTableName: defaultObligationTableName,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// InventoryTableName returns the configured inventory table name.
func (s *Store) InventoryTableName() string {
	return s.inventoryTableName
}

// ObligationTableName returns the configured obligation table name.
func (s *Store) ObligationTableName() string {
	return s.obligationTableName
}

// InTx runs fn in one database transaction on the primary.
func (s *Store) InTx(ctx context.Context, fn admission.TxFunc) error {
	return s.inTx(ctx, actionTransaction, func(ctx context.Context, tx *storeTx) error {
		return fn(ctx, tx)
	})
}

func (s *Store) inTx(ctx context.Context, action string, fn func(ctx context.Context, tx *storeTx) error) (err error) {
	ctx, span := s.startSpan(ctx, action)
	start := time.Now()

	defer func() {
		status := statusSuccess
		if err != nil {
			status = statusError
		}

		s.recordDuration(ctx, metricTransactionDuration, action, status, time.Since(start))
		s.finishSpan(span, err)
	}()

	dbTx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginFailed, beginErr)
		s.recordError(ctx, actionBegin, beginErr)

		return errors.Join(admission.ErrTransactionFailed, classify(beginErr))
	}

	committed := false
	defer func() {
		if !committed {
			s.rollback(ctx, dbTx)
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = s.exec(ctx, dbTx, actionSetLockTimeout, s.lockTimeoutStatement()); err != nil {
			return err
		}
	}

	if err = fn(ctx, &storeTx{store: s, db: dbTx}); err != nil {
		return err
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		committed = true // a failed commit ends the transaction as well
		s.logError(ctx, logMsgCommitFailed, commitErr)
		s.recordError(ctx, actionCommit, commitErr)

		return errors.Join(admission.ErrTransactionFailed, classify(commitErr))
	}

	committed = true

	return nil
}

func (s *Store) rollback(ctx context.Context, dbTx adapters.DBTx) {
	err := dbTx.Rollback(context.WithoutCancel(ctx))
	if err == nil || errors.Is(err, sql.ErrTxDone) || errors.Is(err, pgx.ErrTxClosed) {
		return
	}

	s.logWarn(ctx, logMsgRollbackFailed, err)
}

// lockTimeoutStatement renders SET LOCAL lock_timeout. SET does not take bind parameters.
func (s *Store) lockTimeoutStatement() string {
	ms := max(s.lockTimeout.Milliseconds(), 1)
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

// ObligationsByActor reads the actor's obligations with the given statuses, ordered by creation.
// With eventual consistency in ctx the read may be served by the replica.
func (s *Store) ObligationsByActor(
	ctx context.Context,
	actorID uuid.UUID,
	statuses ...admission.Status,
) (admission.Obligations, error) {
	return s.queryObligationsByActor(ctx, s.readQuerier(ctx), actorID, statuses)
}

// LoadInventory reads an inventory record without locking it.
func (s *Store) LoadInventory(ctx context.Context, resourceID uuid.UUID) (admission.Inventory, error) {
	return s.queryInventory(ctx, s.readQuerier(ctx), actionLoadInventory, resourceID, false)
}

// PutInventory inserts the inventory record or replaces the copy counts of an existing one.
func (s *Store) PutInventory(ctx context.Context, inventory admission.Inventory) error {
	if err := inventory.Validate(); err != nil {
		return err
	}

	sqlQuery, args, err := s.buildUpsertInventoryQuery(inventory)
	if err != nil {
		return s.buildFailed(ctx, actionPutInventory, err)
	}

	_, err = s.exec(ctx, s.db, actionPutInventory, sqlQuery, args...)

	return err
}

// MarkOverdue moves ACTIVE obligations due before asOf to OVERDUE in one statement.
func (s *Store) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	sqlQuery, args, err := s.buildMarkOverdueQuery(asOf)
	if err != nil {
		return 0, s.buildFailed(ctx, actionMarkOverdue, err)
	}

	var marked int64

	err = s.inTx(ctx, actionMarkOverdue, func(ctx context.Context, tx *storeTx) error {
		var execErr error
		marked, execErr = s.exec(ctx, tx.db, actionMarkOverdue, sqlQuery, args...)

		return execErr
	})
	if err != nil {
		return 0, err
	}

	s.logInfo(ctx, logMsgMarkedOverdue, logAttrRowsAffected, marked)

	return marked, nil
}

func (s *Store) readQuerier(ctx context.Context) querier {
	if admission.GetConsistencyLevel(ctx) == admission.EventualConsistency {
		return replicaReads{DBAdapter: s.db}
	}

	return s.db
}

// query runs a statement returning rows and takes care of timing, logging, metrics and classification.
func (s *Store) query(ctx context.Context, q querier, action, sqlQuery string, args ...any) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := q.Query(ctx, sqlQuery, args...)
	duration := time.Since(start)
	s.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		s.recordDuration(ctx, metricStatementDuration, action, statusError, duration)
		s.recordError(ctx, action, err)
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrAction, action, logAttrQuery, sqlQuery)

		return nil, errors.Join(admission.ErrQueryFailed, classify(err))
	}

	s.recordDuration(ctx, metricStatementDuration, action, statusSuccess, duration)

	return rows, nil
}

// exec runs a statement and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, q querier, action, sqlQuery string, args ...any) (int64, error) {
	start := time.Now()
	result, err := q.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	s.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		s.recordDuration(ctx, metricStatementDuration, action, statusError, duration)
		s.recordError(ctx, action, err)
		s.logError(ctx, logMsgDBExecFailed, err, logAttrAction, action, logAttrQuery, sqlQuery)

		return 0, errors.Join(admission.ErrWriteFailed, classify(err))
	}

	s.recordDuration(ctx, metricStatementDuration, action, statusSuccess, duration)

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(admission.ErrWriteFailed, err)
	}

	return rowsAffected, nil
}

func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, err)
	}
}

func (s *Store) buildFailed(ctx context.Context, action string, err error) error {
	s.logError(ctx, logMsgBuildQueryFailed, err, logAttrAction, action)
	return errors.Join(admission.ErrBuildingQueryFailed, err)
}

func (s *Store) scanFailed(ctx context.Context, action string, err error) error {
	s.logError(ctx, logMsgScanRowFailed, err, logAttrAction, action)
	return errors.Join(admission.ErrScanFailed, classify(err))
}

func (s *Store) queryInventory(
	ctx context.Context,
	q querier,
	action string,
	resourceID uuid.UUID,
	forUpdate bool,
) (admission.Inventory, error) {
	sqlQuery, args, err := s.buildSelectInventoryQuery(resourceID, forUpdate)
	if err != nil {
		return admission.Inventory{}, s.buildFailed(ctx, action, err)
	}

	rows, err := s.query(ctx, q, action, sqlQuery, args...)
	if err != nil {
		return admission.Inventory{}, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return admission.Inventory{}, s.scanFailed(ctx, action, rowsErr)
		}

		return admission.Inventory{}, fmt.Errorf("%w: %s", admission.ErrResourceNotFound, resourceID)
	}

	var (
		rawID     string
		inventory admission.Inventory
	)

	if err = rows.Scan(&rawID, &inventory.TotalCopies, &inventory.AvailableCopies); err != nil {
		return admission.Inventory{}, s.scanFailed(ctx, action, err)
	}

	if inventory.ResourceID, err = uuid.Parse(rawID); err != nil {
		return admission.Inventory{}, s.scanFailed(ctx, action, err)
	}

	return inventory, nil
}

func (s *Store) queryObligationsByActor(
	ctx context.Context,
	q querier,
	actorID uuid.UUID,
	statuses []admission.Status,
) (admission.Obligations, error) {
	if len(statuses) == 0 {
		return admission.Obligations{}, nil
	}

	sqlQuery, args, err := s.buildSelectObligationsByActorQuery(actorID, statuses)
	if err != nil {
		return nil, s.buildFailed(ctx, actionQueryObligations, err)
	}

	rows, err := s.query(ctx, q, actionQueryObligations, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	list := make(admission.Obligations, 0)

	for rows.Next() {
		o, scanErr := scanObligation(rows)
		if scanErr != nil {
			return nil, s.scanFailed(ctx, actionQueryObligations, scanErr)
		}

		list = append(list, o)
	}

	if err = rows.Err(); err != nil {
		return nil, s.scanFailed(ctx, actionQueryObligations, err)
	}

	return list, nil
}

func (s *Store) queryObligation(ctx context.Context, q querier, obligationID uuid.UUID) (admission.Obligation, error) {
	sqlQuery, args, err := s.buildSelectObligationQuery(obligationID)
	if err != nil {
		return admission.Obligation{}, s.buildFailed(ctx, actionLockObligation, err)
	}

	rows, err := s.query(ctx, q, actionLockObligation, sqlQuery, args...)
	if err != nil {
		return admission.Obligation{}, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return admission.Obligation{}, s.scanFailed(ctx, actionLockObligation, rowsErr)
		}

		return admission.Obligation{}, fmt.Errorf("%w: %s", admission.ErrObligationNotFound, obligationID)
	}

	o, err := scanObligation(rows)
	if err != nil {
		return admission.Obligation{}, s.scanFailed(ctx, actionLockObligation, err)
	}

	return o, nil
}

// scanObligation reads one row in obligationColumns order.
func scanObligation(rows adapters.DBRows) (admission.Obligation, error) {
	var (
		o                                admission.Obligation
		rawID, rawActorID, rawResourceID string
		status                           string
		returnedAt                       sql.NullTime
	)

	if err := rows.Scan(&rawID, &rawActorID, &rawResourceID, &status, &o.CreatedAt, &o.DueAt, &returnedAt); err != nil {
		return admission.Obligation{}, err
	}

	var err error
	if o.ObligationID, err = uuid.Parse(rawID); err != nil {
		return admission.Obligation{}, err
	}

	if o.ActorID, err = uuid.Parse(rawActorID); err != nil {
		return admission.Obligation{}, err
	}

	if o.ResourceID, err = uuid.Parse(rawResourceID); err != nil {
		return admission.Obligation{}, err
	}

	o.Status = admission.Status(status)
	o.CreatedAt = admission.ToTimestamp(o.CreatedAt)
	o.DueAt = admission.ToTimestamp(o.DueAt)

	if returnedAt.Valid {
		ts := admission.ToTimestamp(returnedAt.Time)
		o.ReturnedAt = &ts
	}

	return o, nil
}

func (s *Store) builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}
