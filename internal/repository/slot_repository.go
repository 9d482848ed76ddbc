package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type RecurringSlotRepository interface {
	ListByWeekday(ctx context.Context, weekday int) ([]domain.RecurringSlot, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.RecurringSlot, bool, error)
}

type RecurringSlotPostgresRepository struct {
	execer Execer
}

func NewRecurringSlotPostgresRepository(execer Execer) *RecurringSlotPostgresRepository {
	return &RecurringSlotPostgresRepository{execer: execer}
}

func (r *RecurringSlotPostgresRepository) ListByWeekday(ctx context.Context, weekday int) ([]domain.RecurringSlot, error) {
	const query = `
SELECT id, weekday, start_time, end_time, subject_id, program, department, semester, academic_year
FROM markme.recurring_slots
WHERE weekday = $1
ORDER BY start_time ASC, id ASC
`

	rows, err := r.execer.QueryContext(ctx, query, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.RecurringSlot
	for rows.Next() {
		var slot domain.RecurringSlot
		if err := rows.Scan(
			&slot.ID,
			&slot.Weekday,
			&slot.StartTime,
			&slot.EndTime,
			&slot.SubjectID,
			&slot.Program,
			&slot.Department,
			&slot.Semester,
			&slot.AcademicYear,
		); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *RecurringSlotPostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RecurringSlot, bool, error) {
	const query = `
SELECT id, weekday, start_time, end_time, subject_id, program, department, semester, academic_year
FROM markme.recurring_slots
WHERE id = $1
`

	var slot domain.RecurringSlot
	err := r.execer.QueryRowContext(ctx, query, id).Scan(
		&slot.ID,
		&slot.Weekday,
		&slot.StartTime,
		&slot.EndTime,
		&slot.SubjectID,
		&slot.Program,
		&slot.Department,
		&slot.Semester,
		&slot.AcademicYear,
	)
	if err == sql.ErrNoRows {
		return domain.RecurringSlot{}, false, nil
	}
	if err != nil {
		return domain.RecurringSlot{}, false, err
	}
	return slot, true, nil
}
