package repository

import (
	"context"
	"time"
)

type RunLogRepository interface {
	// MarkMaterialized records that the materializer handled a target date.
	// Returns false when the date was already claimed, which keeps the
	// daily run at-most-once across restarts and replicas.
	MarkMaterialized(ctx context.Context, date time.Time) (bool, error)
	// ClearMaterialized releases a claim so a failed run can be retried on
	// the next tick.
	ClearMaterialized(ctx context.Context, date time.Time) error
}

type RunLogPostgresRepository struct {
	execer Execer
}

func NewRunLogPostgresRepository(execer Execer) *RunLogPostgresRepository {
	return &RunLogPostgresRepository{execer: execer}
}

func (r *RunLogPostgresRepository) MarkMaterialized(ctx context.Context, date time.Time) (bool, error) {
	const query = `
INSERT INTO markme.materializer_runs (run_date, ran_at)
VALUES ($1, now())
ON CONFLICT (run_date) DO NOTHING
`

	result, err := r.execer.ExecContext(ctx, query, date)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *RunLogPostgresRepository) ClearMaterialized(ctx context.Context, date time.Time) error {
	const query = `
DELETE FROM markme.materializer_runs
WHERE run_date = $1
`

	_, err := r.execer.ExecContext(ctx, query, date)
	return err
}
