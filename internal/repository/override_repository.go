package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type OverrideRepository interface {
	Insert(ctx context.Context, override domain.Override) error
	// GetLatestBySlotDate returns the most recently created override for a
	// session/date pair, if any. Later overrides supersede earlier ones.
	GetLatestBySlotDate(ctx context.Context, slotID uuid.UUID, date time.Time) (domain.Override, bool, error)
	ListByDate(ctx context.Context, date time.Time) ([]domain.Override, error)
	// FindDuplicate looks for an override with the same slot, date, action
	// and new start time, used to make repeated submissions idempotent.
	FindDuplicate(ctx context.Context, override domain.Override) (uuid.UUID, bool, error)
}

type OverridePostgresRepository struct {
	execer Execer
}

func NewOverridePostgresRepository(execer Execer) *OverridePostgresRepository {
	return &OverridePostgresRepository{execer: execer}
}

const overrideColumns = `
id, slot_id, date, action, new_start, new_end, subject_id, program, department, semester, academic_year, created_by, created_at
`

func (r *OverridePostgresRepository) Insert(ctx context.Context, override domain.Override) error {
	const query = `
INSERT INTO markme.session_overrides (
	id,
	slot_id,
	date,
	action,
	new_start,
	new_end,
	subject_id,
	program,
	department,
	semester,
	academic_year,
	created_by,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
`

	var slotID any
	if override.SlotID != nil {
		slotID = *override.SlotID
	}
	_, err := r.execer.ExecContext(
		ctx,
		query,
		override.ID,
		slotID,
		override.Date,
		string(override.Action),
		override.NewStart,
		override.NewEnd,
		nullString(override.SubjectID),
		nullString(override.Program),
		nullString(override.Department),
		override.Semester,
		nullString(override.AcademicYear),
		override.CreatedBy,
	)
	return err
}

func (r *OverridePostgresRepository) GetLatestBySlotDate(ctx context.Context, slotID uuid.UUID, date time.Time) (domain.Override, bool, error) {
	const query = `
SELECT ` + overrideColumns + `
FROM markme.session_overrides
WHERE slot_id = $1 AND date = $2
ORDER BY created_at DESC
LIMIT 1
`

	override, err := r.scanOverride(r.execer.QueryRowContext(ctx, query, slotID, date))
	if err == sql.ErrNoRows {
		return domain.Override{}, false, nil
	}
	if err != nil {
		return domain.Override{}, false, err
	}
	return override, true, nil
}

func (r *OverridePostgresRepository) ListByDate(ctx context.Context, date time.Time) ([]domain.Override, error) {
	const query = `
SELECT ` + overrideColumns + `
FROM markme.session_overrides
WHERE date = $1
ORDER BY created_at ASC
`

	rows, err := r.execer.QueryContext(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []domain.Override
	for rows.Next() {
		override, err := r.scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return overrides, nil
}

func (r *OverridePostgresRepository) FindDuplicate(ctx context.Context, override domain.Override) (uuid.UUID, bool, error) {
	const query = `
SELECT id
FROM markme.session_overrides
WHERE slot_id IS NOT DISTINCT FROM $1
  AND date = $2
  AND action = $3
  AND new_start IS NOT DISTINCT FROM $4
ORDER BY created_at DESC
LIMIT 1
`

	var slotID any
	if override.SlotID != nil {
		slotID = *override.SlotID
	}
	var id uuid.UUID
	err := r.execer.QueryRowContext(ctx, query, slotID, override.Date, string(override.Action), override.NewStart).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *OverridePostgresRepository) scanOverride(row rowScanner) (domain.Override, error) {
	var override domain.Override
	var slotID uuid.NullUUID
	var newStart sql.NullTime
	var newEnd sql.NullTime
	var subjectID sql.NullString
	var program sql.NullString
	var department sql.NullString
	var semester sql.NullInt64
	var academicYear sql.NullString
	var action string
	if err := row.Scan(
		&override.ID,
		&slotID,
		&override.Date,
		&action,
		&newStart,
		&newEnd,
		&subjectID,
		&program,
		&department,
		&semester,
		&academicYear,
		&override.CreatedBy,
		&override.CreatedAt,
	); err != nil {
		return domain.Override{}, err
	}
	override.Action = domain.OverrideAction(action)
	if slotID.Valid {
		id := slotID.UUID
		override.SlotID = &id
	}
	if newStart.Valid {
		override.NewStart = &newStart.Time
	}
	if newEnd.Valid {
		override.NewEnd = &newEnd.Time
	}
	if subjectID.Valid {
		override.SubjectID = subjectID.String
	}
	if program.Valid {
		override.Program = program.String
	}
	if department.Valid {
		override.Department = department.String
	}
	if semester.Valid {
		override.Semester = int(semester.Int64)
	}
	if academicYear.Valid {
		override.AcademicYear = academicYear.String
	}
	return override, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
