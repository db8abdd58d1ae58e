package postgresengine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

func givenQueryStore(t *testing.T, options ...Option) *Store {
	t.Helper()

	s, err := newStore(nil, options...)
	require.NoError(t, err)

	return s
}

func Test_BuildSelectInventoryQuery_LocksOnlyWhenAsked(t *testing.T) {
	// arrange
	s := givenQueryStore(t)
	resourceID := uuid.New()

	// act
	plainSQL, plainArgs, plainErr := s.buildSelectInventoryQuery(resourceID, false)
	lockingSQL, lockingArgs, lockingErr := s.buildSelectInventoryQuery(resourceID, true)

	// assert
	require.NoError(t, plainErr)
	require.NoError(t, lockingErr)
	assert.Contains(t, plainSQL, `FROM "inventory"`)
	assert.Contains(t, plainSQL, `CAST("resource_id" AS TEXT)`)
	assert.Contains(t, plainSQL, "$1")
	assert.NotContains(t, plainSQL, "FOR UPDATE")
	assert.Contains(t, lockingSQL, "FOR UPDATE")
	assert.Equal(t, []any{resourceID.String()}, plainArgs)
	assert.Equal(t, plainArgs, lockingArgs)
}

func Test_BuildUpsertInventoryQuery_UpdatesCopyCountsOnConflict(t *testing.T) {
	// arrange
	s := givenQueryStore(t)

	// act
	sqlQuery, args, err := s.buildUpsertInventoryQuery(admission.BuildInventory(uuid.New(), 3))

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `INSERT INTO "inventory"`)
	assert.Contains(t, sqlQuery, "ON CONFLICT")
	assert.Contains(t, sqlQuery, "EXCLUDED.total_copies")
	assert.Contains(t, sqlQuery, "EXCLUDED.available_copies")
	assert.Len(t, args, 3)
}

func Test_BuildLockActorQuery_UsesTransactionScopedAdvisoryLock(t *testing.T) {
	// arrange
	s := givenQueryStore(t)
	actorID := uuid.New()

	// act
	sqlQuery, args, err := s.buildLockActorQuery(actorID)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "pg_advisory_xact_lock(hashtextextended($1, $2))")
	require.Len(t, args, 2)
	assert.Equal(t, actorID.String(), args[0])
}

func Test_BuildSelectObligationsByActorQuery_FiltersAndOrders(t *testing.T) {
	// arrange
	s := givenQueryStore(t, WithObligationTableName("loans"))
	actorID := uuid.New()

	// act
	sqlQuery, args, err := s.buildSelectObligationsByActorQuery(actorID, admission.OpenStatuses())

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "loans"`)
	assert.Contains(t, sqlQuery, `"status" IN (`)
	assert.Contains(t, sqlQuery, `ORDER BY "created_at" ASC, "obligation_id" ASC`)
	assert.Equal(t, actorID.String(), args[0])
	assert.Len(t, args, 1+len(admission.OpenStatuses()))
}

func Test_BuildSelectObligationQuery_LocksTheRow(t *testing.T) {
	// arrange
	s := givenQueryStore(t)

	// act
	sqlQuery, _, err := s.buildSelectObligationQuery(uuid.New())

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "obligations"`)
	assert.Contains(t, sqlQuery, "FOR UPDATE")
}

func Test_BuildUpdateObligationQuery_LeavesDueAtUntouched(t *testing.T) {
	// arrange
	s := givenQueryStore(t)
	now := time.Now()
	o := admission.BuildRequestedObligation(uuid.New(), uuid.New(), uuid.New(), now, time.Hour).Returned(now)

	// act
	sqlQuery, args, err := s.buildUpdateObligationQuery(o)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "obligations"`)
	assert.Contains(t, sqlQuery, `"returned_at"`)
	assert.NotContains(t, sqlQuery, `"due_at"`)
	assert.Contains(t, args, string(admission.StatusReturned))
}

func Test_BuildMarkOverdueQuery_TargetsActivePastDue(t *testing.T) {
	// arrange
	s := givenQueryStore(t)
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// act
	sqlQuery, args, err := s.buildMarkOverdueQuery(asOf)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "obligations"`)
	assert.Contains(t, sqlQuery, `"due_at" <`)
	assert.Contains(t, args, string(admission.StatusOverdue))
	assert.Contains(t, args, string(admission.StatusActive))
}

func Test_LockTimeoutStatement_RoundsUpToOneMillisecond(t *testing.T) {
	// arrange
	slow := givenQueryStore(t, WithLockTimeout(1500*time.Millisecond))
	tiny := givenQueryStore(t, WithLockTimeout(500*time.Microsecond))

	// act & assert
	assert.Equal(t, "SET LOCAL lock_timeout = '1500ms'", slow.lockTimeoutStatement())
	assert.Equal(t, "SET LOCAL lock_timeout = '1ms'", tiny.lockTimeoutStatement())
}

func Test_SchemaStatements_RenderConfiguredTableNames(t *testing.T) {
	// arrange
	s := givenQueryStore(t, WithInventoryTableName("copies"), WithObligationTableName("loans"))

	// act
	statements, err := s.SchemaStatements()

	// assert
	require.NoError(t, err)
	require.Len(t, statements, 4)
	assert.Contains(t, statements[0], `CREATE TABLE IF NOT EXISTS "copies"`)
	assert.Contains(t, statements[0], "available_copies <= total_copies")
	assert.Contains(t, statements[1], `CREATE TABLE IF NOT EXISTS "loans"`)
	assert.Contains(t, statements[1], `REFERENCES "copies" (resource_id)`)
	assert.Contains(t, statements[2], `"loans_actor_status_idx"`)
	assert.Contains(t, statements[3], `"loans_status_due_idx"`)
}

func Test_NewStore_RejectsInvalidOptions(t *testing.T) {
	_, errInventory := newStore(nil, WithInventoryTableName(""))
	_, errObligation := newStore(nil, WithObligationTableName(""))
	_, errTimeout := newStore(nil, WithLockTimeout(-time.Second))

	assert.ErrorIs(t, errInventory, admission.ErrEmptyTableName)
	assert.ErrorIs(t, errObligation, admission.ErrEmptyTableName)
	assert.ErrorIs(t, errTimeout, admission.ErrNegativeLockTimeout)
}

func Test_NewStoreFromConstructors_RejectNilConnections(t *testing.T) {
	_, errPGX := NewStoreFromPGXPool(nil)
	_, errReplica := NewStoreFromPGXPoolWithReplica(nil, nil)
	_, errSQL := NewStoreFromSQLDB(nil)
	_, errSQLX := NewStoreFromSQLX(nil)

	assert.ErrorIs(t, errPGX, admission.ErrNilDatabaseConnection)
	assert.ErrorIs(t, errReplica, admission.ErrNilDatabaseConnection)
	assert.ErrorIs(t, errSQL, admission.ErrNilDatabaseConnection)
	assert.ErrorIs(t, errSQLX, admission.ErrNilDatabaseConnection)
}
