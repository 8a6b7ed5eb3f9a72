package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
)

const classSelect = `
	SELECT id, name, timezone, status, start_dt, end_dt, created_at, updated_at
	FROM classes
`

type classRepository struct {
	db querier
}

func (r *classRepository) Create(ctx context.Context, class *model.Class) error {
	if class.Status == "" {
		class.Status = model.ClassStatusScheduled
	}
	if class.Timezone == "" {
		class.Timezone = "UTC"
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (name, timezone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		class.Name, class.Timezone, string(class.Status), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}

	if class.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	class.CreatedAt = now
	class.UpdatedAt = now
	return nil
}

func (r *classRepository) GetByID(ctx context.Context, id int64) (*model.Class, error) {
	class, err := scanClass(r.db.QueryRowContext(ctx, classSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class by id: %w", err)
	}
	return class, nil
}

// GetForUpdate в SQLite читает строку без блокировки: транзакции
// сериализуются единственным соединением
func (r *classRepository) GetForUpdate(ctx context.Context, id int64) (*model.Class, error) {
	return r.GetByID(ctx, id)
}

func (r *classRepository) List(ctx context.Context) ([]*model.Class, error) {
	rows, err := r.db.QueryContext(ctx, classSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []*model.Class
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return classes, nil
}

func (r *classRepository) UpdateStatus(ctx context.Context, id int64, status model.ClassStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE classes SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update class %d status: %w", id, repository.ErrNoRows)
	}
	return nil
}

func (r *classRepository) UpdateBounds(ctx context.Context, id int64, start, end *recurrence.Date) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE classes SET start_dt = ?, end_dt = ?, updated_at = ? WHERE id = ?`,
		nullDate(start), nullDate(end), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update class bounds: %w", err)
	}
	return nil
}

func nullDate(d *recurrence.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDate(s sql.NullString) (*recurrence.Date, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := recurrence.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanClass(row scanner) (*model.Class, error) {
	var (
		class                model.Class
		status               string
		start, end           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&class.ID, &class.Name, &class.Timezone, &status, &start, &end, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	class.Status = model.ClassStatus(status)
	if class.StartDate, err = parseNullDate(start); err != nil {
		return nil, err
	}
	if class.EndDate, err = parseNullDate(end); err != nil {
		return nil, err
	}
	if class.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if class.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &class, nil
}
