package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository/base"
)

type PgClassRepository struct {
	*base.Repository
}

func NewClassRepository(db base.Querier) *PgClassRepository {
	return &PgClassRepository{Repository: base.NewRepository(db)}
}

const classSelect = `
	SELECT id, name, timezone, status, start_dt, end_dt, created_at, updated_at
	FROM classes
`

// Create создаёт класс
func (r *PgClassRepository) Create(ctx context.Context, class *model.Class) error {
	if class.Status == "" {
		class.Status = model.ClassStatusScheduled
	}
	if class.Timezone == "" {
		class.Timezone = "UTC"
	}

	query := `
		INSERT INTO classes (name, timezone, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(ctx, query, class.Name, class.Timezone, class.Status).
		Scan(&class.ID, &class.CreatedAt, &class.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}

	return nil
}

// GetByID получает класс по ID
func (r *PgClassRepository) GetByID(ctx context.Context, id int64) (*model.Class, error) {
	class, err := scanClass(r.QueryRow(ctx, classSelect+` WHERE id = $1`, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class by id: %w", err)
	}
	return class, nil
}

// GetForUpdate получает класс и блокирует его строку до конца транзакции
func (r *PgClassRepository) GetForUpdate(ctx context.Context, id int64) (*model.Class, error) {
	class, err := scanClass(r.QueryRow(ctx, classSelect+` WHERE id = $1 FOR UPDATE`, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock class: %w", err)
	}
	return class, nil
}

// List получает все классы
func (r *PgClassRepository) List(ctx context.Context) ([]*model.Class, error) {
	rows, err := r.Query(ctx, classSelect+` ORDER BY id`)
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

// UpdateStatus обновляет статус класса
func (r *PgClassRepository) UpdateStatus(ctx context.Context, id int64, status model.ClassStatus) error {
	affected, err := r.ExecAffected(ctx,
		`UPDATE classes SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update class %d status: %w", id, ErrNoRows)
	}
	return nil
}

// UpdateBounds сохраняет даты первого и последнего занятия
func (r *PgClassRepository) UpdateBounds(ctx context.Context, id int64, start, end *recurrence.Date) error {
	_, err := r.ExecAffected(ctx,
		`UPDATE classes SET start_dt = $2, end_dt = $3, updated_at = now() WHERE id = $1`,
		id, pgNullDate(start), pgNullDate(end))
	if err != nil {
		return fmt.Errorf("update class bounds: %w", err)
	}
	return nil
}

func pgNullDate(d *recurrence.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.StartIn(time.UTC)
	return &t
}

func scanClass(row interface{ Scan(...any) error }) (*model.Class, error) {
	var (
		class      model.Class
		start, end *time.Time
	)
	err := row.Scan(
		&class.ID,
		&class.Name,
		&class.Timezone,
		&class.Status,
		&start,
		&end,
		&class.CreatedAt,
		&class.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if start != nil {
		d := recurrence.DateOf(*start)
		class.StartDate = &d
	}
	if end != nil {
		d := recurrence.DateOf(*end)
		class.EndDate = &d
	}

	return &class, nil
}
