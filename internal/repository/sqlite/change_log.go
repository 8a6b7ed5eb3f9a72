package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
)

type changeLogRepository struct {
	db querier
}

func (r *changeLogRepository) Append(ctx context.Context, e *model.ChangeLogEntry) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO change_log (class_id, series_id, field_name, old_value, new_value, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ClassID, e.SeriesID, string(e.FieldName), e.OldValue, e.NewValue, e.ActorID, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("append change log: %w", err)
	}

	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("append change log: %w", err)
	}
	e.CreatedAt = now
	return nil
}

func (r *changeLogRepository) ListByClass(ctx context.Context, classID int64, limit int) ([]*model.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, series_id, field_name, old_value, new_value, actor_id, created_at
		FROM change_log
		WHERE class_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("list change log: %w", err)
	}
	defer rows.Close()

	var entries []*model.ChangeLogEntry
	for rows.Next() {
		var (
			e         model.ChangeLogEntry
			field     string
			seriesID  sql.NullInt64
			actorID   sql.NullInt64
			oldValue  sql.NullString
			newValue  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ClassID, &seriesID, &field, &oldValue, &newValue, &actorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan change log: %w", err)
		}

		e.FieldName = model.ChangeField(field)
		if seriesID.Valid {
			e.SeriesID = &seriesID.Int64
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change log: %w", err)
	}

	return entries, nil
}
