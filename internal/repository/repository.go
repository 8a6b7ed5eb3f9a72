package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// ClassRepository хранит классы
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	GetByID(ctx context.Context, id int64) (*model.Class, error)
	// GetForUpdate читает класс, блокируя его строку до конца транзакции
	GetForUpdate(ctx context.Context, id int64) (*model.Class, error)
	List(ctx context.Context) ([]*model.Class, error)
	UpdateStatus(ctx context.Context, id int64, status model.ClassStatus) error
	UpdateBounds(ctx context.Context, id int64, start, end *recurrence.Date) error
}

// SeriesRepository хранит серии занятий. Правило разбирается в зоне класса.
type SeriesRepository interface {
	Create(ctx context.Context, series *model.EventSeries) error
	GetByID(ctx context.Context, id int64) (*model.EventSeries, error)
	// GetForUpdate читает серию, блокируя её строку до конца транзакции
	GetForUpdate(ctx context.Context, id int64) (*model.EventSeries, error)
	GetByClassID(ctx context.Context, classID int64) ([]*model.EventSeries, error)
	GetByLineageID(ctx context.Context, lineageID uuid.UUID) ([]*model.EventSeries, error)
	// Update сохраняет правило, длительность и аудиторию, если версия не изменилась.
	// Возвращает false, если серию успели изменить.
	Update(ctx context.Context, series *model.EventSeries) (bool, error)
}

// OverrideRepository хранит переопределения занятий
type OverrideRepository interface {
	Create(ctx context.Context, override *model.Override) error
	Update(ctx context.Context, override *model.Override) error
	GetByID(ctx context.Context, id int64) (*model.Override, error)
	GetBySeriesAndDate(ctx context.Context, seriesID int64, sourceDate recurrence.Date) (*model.Override, error)
	GetBySeriesID(ctx context.Context, seriesID int64) ([]*model.Override, error)
	Find(ctx context.Context, filter OverrideFilter) ([]*model.Override, error)
	Delete(ctx context.Context, id int64) error
}

// ChangeLogRepository хранит журнал изменений расписания
type ChangeLogRepository interface {
	Append(ctx context.Context, entry *model.ChangeLogEntry) error
	ListByClass(ctx context.Context, classID int64, limit int) ([]*model.ChangeLogEntry, error)
}

// Repositories: набор репозиториев, привязанных к одному соединению или транзакции
type Repositories struct {
	Classes   ClassRepository
	Series    SeriesRepository
	Overrides OverrideRepository
	ChangeLog ChangeLogRepository
}

// Store: хранилище с поддержкой транзакций
type Store interface {
	Repos() Repositories
	// InTx выполняет fn в одной транзакции: коммит при nil, откат при ошибке
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}

// OverrideFilter: условия выборки переопределений; пустые поля не ограничивают выборку
type OverrideFilter struct {
	SeriesIDs []int64
	ClassID   *int64
	Kind      *model.OverrideKind
	From      *recurrence.Date
	To        *recurrence.Date
	Limit     uint64
}

const overrideColumns = "o.id, o.series_id, o.source_date, o.kind, o.reason, o.new_start, o.new_end, o.room, o.created_at, o.updated_at"

// OverrideQuery строит SELECT по фильтру; даты передаются через dateArg,
// так как драйверы хранят их по-разному
func OverrideQuery(format squirrel.PlaceholderFormat, filter OverrideFilter, dateArg func(recurrence.Date) any) squirrel.SelectBuilder {
	q := squirrel.StatementBuilder.PlaceholderFormat(format).
		Select(overrideColumns).
		From("overrides o")

	if len(filter.SeriesIDs) > 0 {
		q = q.Where(squirrel.Eq{"o.series_id": filter.SeriesIDs})
	}
	if filter.ClassID != nil {
		q = q.Join("event_series s ON s.id = o.series_id").
			Where(squirrel.Eq{"s.class_id": *filter.ClassID})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"o.kind": string(*filter.Kind)})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"o.source_date": dateArg(*filter.From)})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"o.source_date": dateArg(*filter.To)})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	return q.OrderBy("o.series_id", "o.source_date")
}

// DecodeRule разбирает сохранённое правило серии в зоне класса.
// Ошибка разбора не прерывает чтение: она сохраняется в RuleErr.
func DecodeRule(series *model.EventSeries, timezone string) {
	loc, err := (&model.Class{ID: series.ClassID, Timezone: timezone}).Location()
	if err != nil {
		series.RuleErr = err
		return
	}
	rule, err := recurrence.Parse(series.RawRule, loc)
	if err != nil {
		series.RuleErr = err
		return
	}
	series.Rule = rule
	series.RuleErr = nil
}

// EncodeRule возвращает каноническую текстовую форму правила серии
func EncodeRule(series *model.EventSeries) string {
	series.RawRule = recurrence.Format(series.Rule)
	return series.RawRule
}
