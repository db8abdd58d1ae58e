package postgresengine

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	castText             = "TEXT"
	funcAdvisoryXactLock = "pg_advisory_xact_lock"
	funcHashTextExtended = "hashtextextended"
	excludedPrefix       = "EXCLUDED."
)

// uuid columns are selected as text so every driver scans them the same way.
func (s *Store) inventoryColumns() []any {
	return []any{
		goqu.Cast(goqu.C(colResourceID), castText).As(colResourceID),
		goqu.C(colTotalCopies),
		goqu.C(colAvailableCopies),
	}
}

func (s *Store) obligationColumns() []any {
	return []any{
		goqu.Cast(goqu.C(colObligationID), castText).As(colObligationID),
		goqu.Cast(goqu.C(colActorID), castText).As(colActorID),
		goqu.Cast(goqu.C(colResourceID), castText).As(colResourceID),
		goqu.C(colStatus),
		goqu.C(colCreatedAt),
		goqu.C(colDueAt),
		goqu.C(colReturnedAt),
	}
}

func (s *Store) buildSelectInventoryQuery(resourceID uuid.UUID, forUpdate bool) (string, []any, error) {
	selectStmt := s.builder().
		From(s.inventoryTableName).
		Select(s.inventoryColumns()...).
		Where(goqu.C(colResourceID).Eq(resourceID.String())).
		Prepared(true)

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	return selectStmt.ToSQL()
}

func (s *Store) buildUpdateInventoryQuery(inventory admission.Inventory) (string, []any, error) {
	return s.builder().
		Update(s.inventoryTableName).
		Set(goqu.Record{
			colTotalCopies:     inventory.TotalCopies,
			colAvailableCopies: inventory.AvailableCopies,
		}).
		Where(goqu.C(colResourceID).Eq(inventory.ResourceID.String())).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildUpsertInventoryQuery(inventory admission.Inventory) (string, []any, error) {
	return s.builder().
		Insert(s.inventoryTableName).
		Rows(goqu.Record{
			colResourceID:      inventory.ResourceID.String(),
			colTotalCopies:     inventory.TotalCopies,
			colAvailableCopies: inventory.AvailableCopies,
		}).
		OnConflict(goqu.DoUpdate(colResourceID, goqu.Record{
			colTotalCopies:     goqu.L(excludedPrefix + colTotalCopies),
			colAvailableCopies: goqu.L(excludedPrefix + colAvailableCopies),
		})).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildLockActorQuery(actorID uuid.UUID) (string, []any, error) {
	return s.builder().
		Select(goqu.Func(funcAdvisoryXactLock, goqu.Func(funcHashTextExtended, actorID.String(), 0))).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildSelectObligationsByActorQuery(actorID uuid.UUID, statuses []admission.Status) (string, []any, error) {
	statusValues := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusValues = append(statusValues, string(status))
	}

	return s.builder().
		From(s.obligationTableName).
		Select(s.obligationColumns()...).
		Where(
			goqu.C(colActorID).Eq(actorID.String()),
			goqu.C(colStatus).In(statusValues),
		).
		Order(goqu.C(colCreatedAt).Asc(), goqu.C(colObligationID).Asc()).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildSelectObligationQuery(obligationID uuid.UUID) (string, []any, error) {
	return s.builder().
		From(s.obligationTableName).
		Select(s.obligationColumns()...).
		Where(goqu.C(colObligationID).Eq(obligationID.String())).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildInsertObligationQuery(o admission.Obligation) (string, []any, error) {
	return s.builder().
		Insert(s.obligationTableName).
		Rows(goqu.Record{
			colObligationID: o.ObligationID.String(),
			colActorID:      o.ActorID.String(),
			colResourceID:   o.ResourceID.String(),
			colStatus:       string(o.Status),
			colCreatedAt:    o.CreatedAt,
			colDueAt:        o.DueAt,
			colReturnedAt:   nullableTime(o.ReturnedAt),
		}).
		Prepared(true).
		ToSQL()
}

// buildUpdateObligationQuery only touches the mutable columns; due_at never changes after creation.
func (s *Store) buildUpdateObligationQuery(o admission.Obligation) (string, []any, error) {
	return s.builder().
		Update(s.obligationTableName).
		Set(goqu.Record{
			colStatus:     string(o.Status),
			colReturnedAt: nullableTime(o.ReturnedAt),
		}).
		Where(goqu.C(colObligationID).Eq(o.ObligationID.String())).
		Prepared(true).
		ToSQL()
}

func (s *Store) buildMarkOverdueQuery(asOf time.Time) (string, []any, error) {
	return s.builder().
		Update(s.obligationTableName).
		Set(goqu.Record{colStatus: string(admission.StatusOverdue)}).
		Where(
			goqu.C(colStatus).Eq(string(admission.StatusActive)),
			goqu.C(colDueAt).Lt(admission.ToTimestamp(asOf)),
		).
		Prepared(true).
		ToSQL()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}
