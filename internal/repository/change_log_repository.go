package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/repository/base"
)

type PgChangeLogRepository struct {
	*base.Repository
}

func NewChangeLogRepository(db base.Querier) *PgChangeLogRepository {
	return &PgChangeLogRepository{Repository: base.NewRepository(db)}
}

// Append добавляет запись в журнал
func (r *PgChangeLogRepository) Append(ctx context.Context, e *model.ChangeLogEntry) error {
	query := `
		INSERT INTO change_log (class_id, series_id, field_name, old_value, new_value, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query, e.ClassID, e.SeriesID, e.FieldName, e.OldValue, e.NewValue, e.ActorID).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append change log: %w", err)
	}
	return nil
}

// ListByClass получает последние записи журнала класса, новые первыми
func (r *PgChangeLogRepository) ListByClass(ctx context.Context, classID int64, limit int) ([]*model.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, class_id, series_id, field_name, old_value, new_value, actor_id, created_at
		FROM change_log
		WHERE class_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.Query(ctx, query, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("list change log: %w", err)
	}
	defer rows.Close()

	var entries []*model.ChangeLogEntry
	for rows.Next() {
		e := &model.ChangeLogEntry{}
		err := rows.Scan(&e.ID, &e.ClassID, &e.SeriesID, &e.FieldName, &e.OldValue, &e.NewValue, &e.ActorID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan change log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change log: %w", err)
	}

	return entries, nil
}
