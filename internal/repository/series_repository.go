package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/repository/base"
)

const seriesSelect = `
	SELECT s.id, s.class_id, s.lineage_id, s.rule, s.duration_minutes, s.room, s.version, s.created_at, s.updated_at, c.timezone
	FROM event_series s
	JOIN classes c ON c.id = s.class_id
`

// PgSeriesRepository управляет сериями занятий в PostgreSQL
type PgSeriesRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewSeriesRepository создаёт новый репозиторий
func NewSeriesRepository(db base.Querier, logger *zap.Logger) *PgSeriesRepository {
	return &PgSeriesRepository{
		Repository: base.NewRepository(db),
		logger:     logger,
	}
}

// Create создаёт новую серию
func (r *PgSeriesRepository) Create(ctx context.Context, series *model.EventSeries) error {
	query := `
		INSERT INTO event_series (class_id, lineage_id, rule, duration_minutes, room)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		series.ClassID,
		series.LineageID,
		EncodeRule(series),
		series.DurationMinutes,
		series.Room,
	).Scan(&series.ID, &series.Version, &series.CreatedAt, &series.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create event series: %w", err)
	}

	return nil
}

// GetByID получает серию по ID
func (r *PgSeriesRepository) GetByID(ctx context.Context, id int64) (*model.EventSeries, error) {
	series, err := r.scanOne(r.QueryRow(ctx, seriesSelect+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get event series by id: %w", err)
	}
	return series, nil
}

// GetForUpdate получает серию и блокирует её строку до конца транзакции
func (r *PgSeriesRepository) GetForUpdate(ctx context.Context, id int64) (*model.EventSeries, error) {
	series, err := r.scanOne(r.QueryRow(ctx, seriesSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id))
	if err != nil {
		return nil, fmt.Errorf("lock event series: %w", err)
	}
	return series, nil
}

// GetByClassID получает все серии класса
func (r *PgSeriesRepository) GetByClassID(ctx context.Context, classID int64) ([]*model.EventSeries, error) {
	rows, err := r.Query(ctx, seriesSelect+` WHERE s.class_id = $1 ORDER BY s.id`, classID)
	if err != nil {
		return nil, fmt.Errorf("get event series by class: %w", err)
	}
	return r.scanAll(rows)
}

// GetByLineageID получает все серии одной линии разбиений
func (r *PgSeriesRepository) GetByLineageID(ctx context.Context, lineageID uuid.UUID) ([]*model.EventSeries, error) {
	rows, err := r.Query(ctx, seriesSelect+` WHERE s.lineage_id = $1 ORDER BY s.id`, lineageID)
	if err != nil {
		return nil, fmt.Errorf("get event series by lineage: %w", err)
	}
	return r.scanAll(rows)
}

// Update обновляет серию, если её версия не менялась
func (r *PgSeriesRepository) Update(ctx context.Context, series *model.EventSeries) (bool, error) {
	query := `
		UPDATE event_series
		SET rule = $2, duration_minutes = $3, room = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING version, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		series.ID,
		EncodeRule(series),
		series.DurationMinutes,
		series.Room,
		series.Version,
	).Scan(&series.Version, &series.UpdatedAt)

	if base.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update event series: %w", err)
	}

	return true, nil
}

func (r *PgSeriesRepository) scanOne(row pgx.Row) (*model.EventSeries, error) {
	series, err := r.scan(row)
	if base.IsNotFound(err) {
		return nil, nil
	}
	return series, err
}

func (r *PgSeriesRepository) scanAll(rows pgx.Rows) ([]*model.EventSeries, error) {
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

func (r *PgSeriesRepository) scan(row pgx.Row) (*model.EventSeries, error) {
	series := &model.EventSeries{}
	var timezone string
	err := row.Scan(
		&series.ID,
		&series.ClassID,
		&series.LineageID,
		&series.RawRule,
		&series.DurationMinutes,
		&series.Room,
		&series.Version,
		&series.CreatedAt,
		&series.UpdatedAt,
		&timezone,
	)
	if err != nil {
		return nil, err
	}

	DecodeRule(series, timezone)
	if series.RuleErr != nil {
		r.logger.Warn("Stored recurrence rule is malformed",
			zap.Int64("series_id", series.ID),
			zap.String("rule", series.RawRule),
			zap.Error(series.RuleErr),
		)
	}

	return series, nil
}
