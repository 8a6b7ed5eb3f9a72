package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository/base"
)

// PgOverrideRepository управляет переопределениями занятий в PostgreSQL
type PgOverrideRepository struct {
	*base.Repository
}

func NewOverrideRepository(db base.Querier) *PgOverrideRepository {
	return &PgOverrideRepository{Repository: base.NewRepository(db)}
}

func pgDate(d recurrence.Date) any {
	return d.StartIn(time.UTC)
}

// Create создаёт переопределение
func (r *PgOverrideRepository) Create(ctx context.Context, o *model.Override) error {
	query := `
		INSERT INTO overrides (series_id, source_date, kind, reason, new_start, new_end, room)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	row := RowOf(o)
	err := r.QueryRow(
		ctx, query,
		o.SeriesID,
		pgDate(o.SourceDate),
		row.Kind,
		row.Reason,
		row.NewStart,
		row.NewEnd,
		row.Room,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create override: %w", ErrDuplicate)
		}
		return fmt.Errorf("create override: %w", err)
	}

	return nil
}

// Update перезаписывает вариант переопределения
func (r *PgOverrideRepository) Update(ctx context.Context, o *model.Override) error {
	query := `
		UPDATE overrides
		SET kind = $2, reason = $3, new_start = $4, new_end = $5, room = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	row := RowOf(o)
	err := r.QueryRow(ctx, query, o.ID, row.Kind, row.Reason, row.NewStart, row.NewEnd, row.Room).Scan(&o.UpdatedAt)
	if base.IsNotFound(err) {
		return fmt.Errorf("update override %d: %w", o.ID, ErrNoRows)
	}
	if err != nil {
		return fmt.Errorf("update override: %w", err)
	}

	return nil
}

// GetByID получает переопределение по ID
func (r *PgOverrideRepository) GetByID(ctx context.Context, id int64) (*model.Override, error) {
	query := `SELECT ` + overrideColumns + ` FROM overrides o WHERE o.id = $1`

	o, err := scanOverride(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override by id: %w", err)
	}

	return o, nil
}

// GetBySeriesAndDate получает переопределение занятия серии на исходную дату
func (r *PgOverrideRepository) GetBySeriesAndDate(ctx context.Context, seriesID int64, sourceDate recurrence.Date) (*model.Override, error) {
	query := `SELECT ` + overrideColumns + ` FROM overrides o WHERE o.series_id = $1 AND o.source_date = $2`

	o, err := scanOverride(r.QueryRow(ctx, query, seriesID, pgDate(sourceDate)))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override by series and date: %w", err)
	}

	return o, nil
}

// GetBySeriesID получает все переопределения серии
func (r *PgOverrideRepository) GetBySeriesID(ctx context.Context, seriesID int64) ([]*model.Override, error) {
	return r.Find(ctx, OverrideFilter{SeriesIDs: []int64{seriesID}})
}

// Find получает переопределения по фильтру
func (r *PgOverrideRepository) Find(ctx context.Context, filter OverrideFilter) ([]*model.Override, error) {
	query, args, err := OverrideQuery(squirrel.Dollar, filter, pgDate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overrides query: %w", err)
	}

	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*model.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}

	return overrides, nil
}

// Delete удаляет переопределение
func (r *PgOverrideRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete override %d: %w", id, ErrNoRows)
	}

	return nil
}

func scanOverride(row pgx.Row) (*model.Override, error) {
	var (
		o          model.Override
		sourceDate time.Time
		cols       OverrideRow
	)
	err := row.Scan(
		&o.ID,
		&o.SeriesID,
		&sourceDate,
		&cols.Kind,
		&cols.Reason,
		&cols.NewStart,
		&cols.NewEnd,
		&cols.Room,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.SourceDate = recurrence.DateOf(sourceDate)
	if err := cols.Apply(&o); err != nil {
		return nil, err
	}

	return &o, nil
}
