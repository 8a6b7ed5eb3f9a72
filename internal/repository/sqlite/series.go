package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
)

const seriesSelect = `
	SELECT s.id, s.class_id, s.lineage_id, s.rule, s.duration_minutes, s.room, s.version, s.created_at, s.updated_at, c.timezone
	FROM event_series s
	JOIN classes c ON c.id = s.class_id
`

type seriesRepository struct {
	db     querier
	logger *zap.Logger
}

func (r *seriesRepository) Create(ctx context.Context, series *model.EventSeries) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO event_series (class_id, lineage_id, rule, duration_minutes, room, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		series.ClassID,
		series.LineageID.String(),
		repository.EncodeRule(series),
		series.DurationMinutes,
		series.Room,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("create event series: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create event series: %w", err)
	}

	series.ID = id
	series.Version = 1
	series.CreatedAt = now
	series.UpdatedAt = now
	return nil
}

func (r *seriesRepository) GetByID(ctx context.Context, id int64) (*model.EventSeries, error) {
	series, err := r.scan(r.db.QueryRowContext(ctx, seriesSelect+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event series by id: %w", err)
	}
	return series, nil
}

// GetForUpdate в SQLite не берёт блокировку строки: запись сериализуется
// единственным соединением, а гонку ловит проверка версии в Update
func (r *seriesRepository) GetForUpdate(ctx context.Context, id int64) (*model.EventSeries, error) {
	return r.GetByID(ctx, id)
}

func (r *seriesRepository) GetByClassID(ctx context.Context, classID int64) ([]*model.EventSeries, error) {
	return r.list(ctx, seriesSelect+` WHERE s.class_id = ? ORDER BY s.id`, classID)
}

func (r *seriesRepository) GetByLineageID(ctx context.Context, lineageID uuid.UUID) ([]*model.EventSeries, error) {
	return r.list(ctx, seriesSelect+` WHERE s.lineage_id = ? ORDER BY s.id`, lineageID.String())
}

func (r *seriesRepository) Update(ctx context.Context, series *model.EventSeries) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_series
		SET rule = ?, duration_minutes = ?, room = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		repository.EncodeRule(series),
		series.DurationMinutes,
		series.Room,
		formatTime(now),
		series.ID,
		series.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update event series: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update event series: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	series.Version++
	series.UpdatedAt = now
	return true, nil
}

func (r *seriesRepository) list(ctx context.Context, query string, args ...any) ([]*model.EventSeries, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list event series: %w", err)
	}
	defer rows.Close()

	var list []*model.EventSeries
	for rows.Next() {
		series, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event series: %w", err)
		}
		list = append(list, series)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event series: %w", err)
	}

	return list, nil
}

func (r *seriesRepository) scan(row scanner) (*model.EventSeries, error) {
	var (
		series               model.EventSeries
		lineage              string
		createdAt, updatedAt string
		timezone             string
	)
	err := row.Scan(
		&series.ID,
		&series.ClassID,
		&lineage,
		&series.RawRule,
		&series.DurationMinutes,
		&series.Room,
		&series.Version,
		&createdAt,
		&updatedAt,
		&timezone,
	)
	if err != nil {
		return nil, err
	}

	if series.LineageID, err = uuid.Parse(lineage); err != nil {
		return nil, fmt.Errorf("parse lineage id of series %d: %w", series.ID, err)
	}
	if series.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if series.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	repository.DecodeRule(&series, timezone)
	if series.RuleErr != nil {
		r.logger.Warn("Stored recurrence rule is malformed",
			zap.Int64("series_id", series.ID),
			zap.String("rule", series.RawRule),
			zap.Error(series.RuleErr),
		)
	}

	return &series, nil
}
