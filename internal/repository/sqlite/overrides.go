package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
)

type overrideRepository struct {
	db querier
}

func dateArg(d recurrence.Date) any {
	return d.String()
}

func (r *overrideRepository) Create(ctx context.Context, o *model.Override) error {
	now := time.Now().UTC()
	row := repository.RowOf(o)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO overrides (series_id, source_date, kind, reason, new_start, new_end, room, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SeriesID,
		o.SourceDate.String(),
		row.Kind,
		row.Reason,
		nullTime(row.NewStart),
		nullTime(row.NewEnd),
		row.Room,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create override: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("create override: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create override: %w", err)
	}

	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (r *overrideRepository) Update(ctx context.Context, o *model.Override) error {
	now := time.Now().UTC()
	row := repository.RowOf(o)

	res, err := r.db.ExecContext(ctx, `
		UPDATE overrides
		SET kind = ?, reason = ?, new_start = ?, new_end = ?, room = ?, updated_at = ?
		WHERE id = ?`,
		row.Kind, row.Reason, nullTime(row.NewStart), nullTime(row.NewEnd), row.Room, formatTime(now), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update override %d: %w", o.ID, repository.ErrNoRows)
	}

	o.UpdatedAt = now
	return nil
}

func (r *overrideRepository) GetByID(ctx context.Context, id int64) (*model.Override, error) {
	return r.one(ctx, "get override by id", squirrel.Eq{"o.id": id})
}

func (r *overrideRepository) GetBySeriesAndDate(ctx context.Context, seriesID int64, sourceDate recurrence.Date) (*model.Override, error) {
	return r.one(ctx, "get override by series and date", squirrel.Eq{"o.series_id": seriesID, "o.source_date": sourceDate.String()})
}

func (r *overrideRepository) GetBySeriesID(ctx context.Context, seriesID int64) ([]*model.Override, error) {
	return r.Find(ctx, repository.OverrideFilter{SeriesIDs: []int64{seriesID}})
}

func (r *overrideRepository) Find(ctx context.Context, filter repository.OverrideFilter) ([]*model.Override, error) {
	query, args, err := repository.OverrideQuery(squirrel.Question, filter, dateArg).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overrides query: %w", err)
	}
	return r.list(ctx, query, args...)
}

func (r *overrideRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM overrides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete override %d: %w", id, repository.ErrNoRows)
	}
	return nil
}

func (r *overrideRepository) one(ctx context.Context, op string, where squirrel.Eq) (*model.Override, error) {
	query, args, err := repository.OverrideQuery(squirrel.Question, repository.OverrideFilter{}, dateArg).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	o, err := scanOverride(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

func (r *overrideRepository) list(ctx context.Context, query string, args ...any) ([]*model.Override, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func scanOverride(row scanner) (*model.Override, error) {
	var (
		o                    model.Override
		sourceDate           string
		cols                 repository.OverrideRow
		newStart, newEnd     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&o.ID,
		&o.SeriesID,
		&sourceDate,
		&cols.Kind,
		&cols.Reason,
		&newStart,
		&newEnd,
		&cols.Room,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if o.SourceDate, err = recurrence.ParseDate(sourceDate); err != nil {
		return nil, err
	}
	if cols.NewStart, err = parseNullTime(newStart); err != nil {
		return nil, err
	}
	if cols.NewEnd, err = parseNullTime(newEnd); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := cols.Apply(&o); err != nil {
		return nil, err
	}

	return &o, nil
}
