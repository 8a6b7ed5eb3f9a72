package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

// SplitRequest: параметры разбиения серии
type SplitRequest struct {
	Rule recurrence.Rule
	// DurationMinutes и Room наследуются от старой серии, если не заданы
	DurationMinutes int
	Room            string
	Cutover         recurrence.Date
	// AllowPastCutover разрешает дату разбиения в прошлом
	AllowPastCutover bool
}

// SeriesService изменяет расписание: создаёт серии, отменяет, переносит и восстанавливает занятия.
// Каждая операция выполняется в одной транзакции под блокировкой серии.
type SeriesService struct {
	store       repository.Store
	clock       Clock
	seriesLocks *keyedMutex
	classLocks  *keyedMutex
	logger      *zap.Logger
}

func NewSeriesService(store repository.Store, clock Clock, logger *zap.Logger) *SeriesService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SeriesService{
		store:       store,
		clock:       clock,
		seriesLocks: newKeyedMutex(),
		classLocks:  newKeyedMutex(),
		logger:      logger,
	}
}

// CreateClass создаёт класс в зоне timezone
func (s *SeriesService) CreateClass(ctx context.Context, name, timezone string) (*model.Class, error) {
	if name == "" {
		return nil, apperrors.NewValidation("class name is required")
	}
	class := &model.Class{Name: name, Timezone: timezone, Status: model.ClassStatusScheduled}
	if _, err := class.Location(); err != nil {
		return nil, apperrors.NewValidation("unknown timezone %q", timezone)
	}

	if err := s.store.Repos().Classes.Create(ctx, class); err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}

	s.logger.Info("Class created",
		zap.Int64("class_id", class.ID),
		zap.String("name", class.Name),
		zap.String("timezone", class.Timezone),
	)
	return class, nil
}

// ParseRule разбирает текст правила в зоне класса
func (s *SeriesService) ParseRule(ctx context.Context, classID int64, text string) (recurrence.Rule, error) {
	_, loc, err := loadClass(ctx, s.store.Repos(), classID)
	if err != nil {
		return recurrence.Rule{}, err
	}
	return recurrence.Parse(text, loc)
}

// ParseSeriesRule разбирает текст правила в зоне класса, которому принадлежит серия
func (s *SeriesService) ParseSeriesRule(ctx context.Context, seriesID int64, text string) (recurrence.Rule, error) {
	series, err := s.store.Repos().Series.GetByID(ctx, seriesID)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("get series: %w", err)
	}
	if series == nil {
		return recurrence.Rule{}, apperrors.NewNotFound("series %d not found", seriesID)
	}
	return s.ParseRule(ctx, series.ClassID, text)
}

// CreateSeries создаёт первую (или очередную, если прежние закрыты) серию класса
func (s *SeriesService) CreateSeries(ctx context.Context, classID int64, rule recurrence.Rule, durationMinutes int, room string) (*model.EventSeries, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		return nil, apperrors.NewValidation("duration must be positive, got %d minutes", durationMinutes)
	}

	unlock := s.classLocks.Lock(classID)
	defer unlock()

	var series *model.EventSeries
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		class, loc, err := s.lockOpenClass(ctx, repos, classID)
		if err != nil {
			return err
		}

		existing, err := repos.Series.GetByClassID(ctx, classID)
		if err != nil {
			return fmt.Errorf("get class series: %w", err)
		}
		now := today(s.clock, loc)
		for _, e := range existing {
			if e.IsOpenOn(now) {
				return apperrors.NewConflict("class %d already has active series %d", classID, e.ID)
			}
		}

		series = &model.EventSeries{
			ClassID:         class.ID,
			LineageID:       uuid.New(),
			Rule:            rule,
			DurationMinutes: durationMinutes,
			Room:            room,
		}
		if err := repos.Series.Create(ctx, series); err != nil {
			return fmt.Errorf("create series: %w", err)
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   classID,
			SeriesID:  &series.ID,
			FieldName: model.ChangeSeriesCreated,
			NewValue:  strPtr(series.RawRule),
		})
		if err != nil {
			return err
		}

		return syncBounds(ctx, repos, classID, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Series created",
		zap.Int64("series_id", series.ID),
		zap.Int64("class_id", classID),
		zap.String("rule", series.RawRule),
	)
	return series, nil
}

// Cancel отменяет занятие серии на исходную дату
func (s *SeriesService) Cancel(ctx context.Context, seriesID int64, sourceDate recurrence.Date, reason string) (*model.Override, error) {
	unlock := s.seriesLocks.Lock(seriesID)
	defer unlock()

	var override *model.Override
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		series, loc, err := s.loadMutableSeries(ctx, repos, seriesID)
		if err != nil {
			return err
		}
		if err := requireBaseDate(series, sourceDate); err != nil {
			return err
		}

		existing, err := repos.Overrides.GetBySeriesAndDate(ctx, seriesID, sourceDate)
		if err != nil {
			return fmt.Errorf("get override: %w", err)
		}
		if existing != nil {
			return apperrors.NewConflict("occurrence of series %d on %s is already %s", seriesID, sourceDate, existing.Kind())
		}

		override = model.NewCancellation(seriesID, sourceDate, reason)
		if err := s.createOverride(ctx, repos, override); err != nil {
			return err
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   series.ClassID,
			SeriesID:  &series.ID,
			FieldName: model.ChangeEventCancelled,
			NewValue:  strPtr(sourceDate.String()),
		})
		if err != nil {
			return err
		}

		return s.finishMutation(ctx, repos, series, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Occurrence cancelled",
		zap.Int64("series_id", seriesID),
		zap.Int64("override_id", override.ID),
		zap.Stringer("source_date", sourceDate),
		zap.String("reason", reason),
	)
	return override, nil
}

// Reschedule переносит занятие исходной даты на [newStart, newEnd).
// Повторный перенос того же занятия обновляет существующее переопределение.
func (s *SeriesService) Reschedule(ctx context.Context, seriesID int64, sourceDate recurrence.Date, newStart, newEnd time.Time, room string) (*model.Override, error) {
	if newStart.IsZero() || !newEnd.After(newStart) {
		return nil, apperrors.NewValidation("new end must be after new start")
	}

	unlock := s.seriesLocks.Lock(seriesID)
	defer unlock()

	var override *model.Override
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		series, loc, err := s.loadMutableSeries(ctx, repos, seriesID)
		if err != nil {
			return err
		}
		if err := requireBaseDate(series, sourceDate); err != nil {
			return err
		}

		overrides, err := repos.Overrides.GetBySeriesID(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("get overrides: %w", err)
		}

		var existing *model.Override
		others := make([]*model.Override, 0, len(overrides))
		for _, o := range overrides {
			if o.SourceDate == sourceDate {
				existing = o
				continue
			}
			others = append(others, o)
		}
		if existing != nil && existing.Move == nil {
			return apperrors.NewConflict("occurrence of series %d on %s is cancelled, restore it first", seriesID, sourceDate)
		}

		if err := checkCollision(series, others, sourceDate, newStart); err != nil {
			return err
		}

		oldStart, err := currentStart(series, existing, sourceDate)
		if err != nil {
			return err
		}

		if existing != nil {
			existing.Move = &model.Move{NewStart: newStart, NewEnd: newEnd, Room: room}
			if err := repos.Overrides.Update(ctx, existing); err != nil {
				return fmt.Errorf("update override: %w", err)
			}
			override = existing
		} else {
			override = model.NewMove(seriesID, sourceDate, newStart, newEnd, room)
			if err := s.createOverride(ctx, repos, override); err != nil {
				return err
			}
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   series.ClassID,
			SeriesID:  &series.ID,
			FieldName: model.ChangeEventRescheduled,
			OldValue:  strPtr(oldStart.In(loc).Format(time.RFC3339)),
			NewValue:  strPtr(newStart.In(loc).Format(time.RFC3339)),
		})
		if err != nil {
			return err
		}

		return s.finishMutation(ctx, repos, series, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Occurrence rescheduled",
		zap.Int64("series_id", seriesID),
		zap.Int64("override_id", override.ID),
		zap.Stringer("source_date", sourceDate),
		zap.Time("new_start", newStart),
		zap.Time("new_end", newEnd),
	)
	return override, nil
}

// SplitSeries закрывает серию накануне cutover и начинает с cutover новую серию той же линии.
// Переопределения старой серии на даты от cutover остаются у неё и больше не действуют.
func (s *SeriesService) SplitSeries(ctx context.Context, seriesID int64, req SplitRequest) (*model.EventSeries, error) {
	if err := req.Rule.Validate(); err != nil {
		return nil, err
	}
	if req.Cutover.IsZero() {
		return nil, apperrors.NewValidation("cutover date is required")
	}
	if req.DurationMinutes < 0 {
		return nil, apperrors.NewValidation("duration must be positive, got %d minutes", req.DurationMinutes)
	}

	unlock := s.seriesLocks.Lock(seriesID)
	defer unlock()

	var next *model.EventSeries
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		old, loc, err := s.loadMutableSeries(ctx, repos, seriesID)
		if err != nil {
			return err
		}

		if now := today(s.clock, loc); req.Cutover.Before(now) && !req.AllowPastCutover {
			return apperrors.NewPastCutover("cutover %s is before today %s", req.Cutover, now)
		}
		if old.Rule.EndsBefore(req.Cutover) {
			return apperrors.NewConflict("series %d already ended on %s", seriesID, old.Rule.Until)
		}

		newRule := req.Rule.WithStartDate(req.Cutover)
		if newRule.EndsBefore(req.Cutover) {
			return apperrors.NewInvalidRule("new rule ends on %s, before cutover %s", newRule.Until, req.Cutover)
		}

		oldRaw := old.RawRule
		lastDay := req.Cutover.AddDays(-1)
		old.Rule = old.Rule.WithUntil(&lastDay)
		if err := s.bumpSeries(ctx, repos, old); err != nil {
			return err
		}

		next = &model.EventSeries{
			ClassID:         old.ClassID,
			LineageID:       old.LineageID,
			Rule:            newRule,
			DurationMinutes: req.DurationMinutes,
			Room:            req.Room,
		}
		if next.DurationMinutes == 0 {
			next.DurationMinutes = old.DurationMinutes
		}
		if next.Room == "" {
			next.Room = old.Room
		}
		if err := repos.Series.Create(ctx, next); err != nil {
			return fmt.Errorf("create series: %w", err)
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   old.ClassID,
			SeriesID:  &next.ID,
			FieldName: model.ChangeSeriesRescheduled,
			OldValue:  strPtr(oldRaw),
			NewValue:  strPtr(next.RawRule),
		})
		if err != nil {
			return err
		}

		return syncBounds(ctx, repos, old.ClassID, loc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Series split",
		zap.Int64("old_series_id", seriesID),
		zap.Int64("new_series_id", next.ID),
		zap.Stringer("cutover", req.Cutover),
		zap.String("rule", next.RawRule),
	)
	return next, nil
}

// Restore удаляет переопределение: занятие возвращается на исходное время
func (s *SeriesService) Restore(ctx context.Context, overrideID int64) error {
	probe, err := s.store.Repos().Overrides.GetByID(ctx, overrideID)
	if err != nil {
		return fmt.Errorf("get override: %w", err)
	}
	if probe == nil {
		return apperrors.NewNotFound("override %d not found", overrideID)
	}

	unlock := s.seriesLocks.Lock(probe.SeriesID)
	defer unlock()

	var restored *model.Override
	err = s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		override, err := repos.Overrides.GetByID(ctx, overrideID)
		if err != nil {
			return fmt.Errorf("get override: %w", err)
		}
		if override == nil {
			return apperrors.NewNotFound("override %d not found", overrideID)
		}

		series, loc, err := s.loadMutableSeries(ctx, repos, override.SeriesID)
		if err != nil {
			return err
		}

		if err := repos.Overrides.Delete(ctx, overrideID); err != nil {
			if errors.Is(err, repository.ErrNoRows) {
				return apperrors.NewNotFound("override %d not found", overrideID)
			}
			return fmt.Errorf("delete override: %w", err)
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   series.ClassID,
			SeriesID:  &series.ID,
			FieldName: model.ChangeEventRestored,
			OldValue:  strPtr(string(override.Kind())),
			NewValue:  strPtr(override.SourceDate.String()),
		})
		if err != nil {
			return err
		}

		restored = override
		return s.finishMutation(ctx, repos, series, loc)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Occurrence restored",
		zap.Int64("series_id", restored.SeriesID),
		zap.Int64("override_id", overrideID),
		zap.Stringer("source_date", restored.SourceDate),
		zap.String("kind", string(restored.Kind())),
	)
	return nil
}

// CloseClass завершает или отменяет класс и закрывает его действующие серии сегодняшним днём
func (s *SeriesService) CloseClass(ctx context.Context, classID int64, status model.ClassStatus) error {
	if !status.IsClosed() {
		return apperrors.NewValidation("class can only be closed as completed or cancelled, got %q", status)
	}

	unlock := s.classLocks.Lock(classID)
	defer unlock()

	var closed []int64
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		class, loc, err := s.lockOpenClass(ctx, repos, classID)
		if err != nil {
			return err
		}

		series, err := repos.Series.GetByClassID(ctx, classID)
		if err != nil {
			return fmt.Errorf("get class series: %w", err)
		}

		now := today(s.clock, loc)
		for _, sr := range series {
			if !sr.IsOpenOn(now) {
				continue
			}
			sr.Rule = sr.Rule.WithUntil(&now)
			if err := s.bumpSeries(ctx, repos, sr); err != nil {
				return err
			}
			closed = append(closed, sr.ID)
		}

		if err := repos.Classes.UpdateStatus(ctx, classID, status); err != nil {
			return fmt.Errorf("update class status: %w", err)
		}

		err = s.appendChange(ctx, repos, &model.ChangeLogEntry{
			ClassID:   classID,
			FieldName: model.ChangeClassClosed,
			OldValue:  strPtr(string(class.Status)),
			NewValue:  strPtr(string(status)),
		})
		if err != nil {
			return err
		}

		return syncBounds(ctx, repos, classID, loc)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Class closed",
		zap.Int64("class_id", classID),
		zap.String("status", string(status)),
		zap.Int64s("closed_series", closed),
	)
	return nil
}

func (s *SeriesService) loadOpenClass(ctx context.Context, repos repository.Repositories, classID int64) (*model.Class, *time.Location, error) {
	return requireOpen(loadClass(ctx, repos, classID))
}

// lockOpenClass блокирует строку класса, чтобы проверка серий класса и запись
// не пересекались с такими же операциями других процессов
func (s *SeriesService) lockOpenClass(ctx context.Context, repos repository.Repositories, classID int64) (*model.Class, *time.Location, error) {
	return requireOpen(lockClass(ctx, repos, classID))
}

func requireOpen(class *model.Class, loc *time.Location, err error) (*model.Class, *time.Location, error) {
	if err != nil {
		return nil, nil, err
	}
	if class.Status.IsClosed() {
		return nil, nil, apperrors.NewConflict("class %d is %s", class.ID, class.Status)
	}
	return class, loc, nil
}

// loadMutableSeries блокирует серию и проверяет, что её можно менять
func (s *SeriesService) loadMutableSeries(ctx context.Context, repos repository.Repositories, seriesID int64) (*model.EventSeries, *time.Location, error) {
	series, err := repos.Series.GetForUpdate(ctx, seriesID)
	if err != nil {
		return nil, nil, fmt.Errorf("get series: %w", err)
	}
	if series == nil {
		return nil, nil, apperrors.NewNotFound("series %d not found", seriesID)
	}
	if series.RuleErr != nil {
		return nil, nil, series.RuleErr
	}

	_, loc, err := s.loadOpenClass(ctx, repos, series.ClassID)
	if err != nil {
		return nil, nil, err
	}
	return series, loc, nil
}

func (s *SeriesService) createOverride(ctx context.Context, repos repository.Repositories, o *model.Override) error {
	if err := o.Validate(); err != nil {
		return apperrors.NewValidation("%v", err)
	}
	if err := repos.Overrides.Create(ctx, o); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.NewConflict("occurrence of series %d on %s already has an override", o.SeriesID, o.SourceDate)
		}
		return fmt.Errorf("create override: %w", err)
	}
	return nil
}

// bumpSeries сохраняет серию с проверкой версии
func (s *SeriesService) bumpSeries(ctx context.Context, repos repository.Repositories, series *model.EventSeries) error {
	ok, err := repos.Series.Update(ctx, series)
	if err != nil {
		return fmt.Errorf("update series: %w", err)
	}
	if !ok {
		return apperrors.NewConflict("series %d was modified concurrently", series.ID)
	}
	return nil
}

func (s *SeriesService) finishMutation(ctx context.Context, repos repository.Repositories, series *model.EventSeries, loc *time.Location) error {
	if err := s.bumpSeries(ctx, repos, series); err != nil {
		return err
	}
	return syncBounds(ctx, repos, series.ClassID, loc)
}

func (s *SeriesService) appendChange(ctx context.Context, repos repository.Repositories, entry *model.ChangeLogEntry) error {
	entry.ActorID = actorFrom(ctx)
	if err := repos.ChangeLog.Append(ctx, entry); err != nil {
		return fmt.Errorf("append change log: %w", err)
	}
	return nil
}

// requireBaseDate проверяет, что правило серии порождает занятие на дату d
func requireBaseDate(series *model.EventSeries, d recurrence.Date) error {
	_, ok, err := recurrence.OccursOn(series.Rule, d)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFound("series %d has no occurrence on %s", series.ID, d)
	}
	return nil
}

// currentStart возвращает время занятия до переноса, то есть прежний перенос или время по правилу
func currentStart(series *model.EventSeries, existing *model.Override, d recurrence.Date) (time.Time, error) {
	if existing != nil && existing.Move != nil {
		return existing.Move.NewStart, nil
	}
	start, _, err := recurrence.OccursOn(series.Rule, d)
	return start, err
}

// checkCollision запрещает перенос на дату, где у серии уже есть другое действующее занятие.
// others: переопределения серии без переносимого занятия.
func checkCollision(series *model.EventSeries, others []*model.Override, sourceDate recurrence.Date, newStart time.Time) error {
	loc := series.Rule.Location()
	target := recurrence.DateOf(newStart.In(loc))

	// переносимое занятие временно исключаем из расписания
	excluded := append(others, model.NewCancellation(series.ID, sourceDate, ""))

	tl, err := timeline.Build(series, excluded, target.StartIn(loc), target.EndIn(loc))
	if err != nil {
		return err
	}
	for _, o := range tl.Active() {
		if recurrence.DateOf(o.Start.In(loc)) == target {
			return apperrors.NewConflict("series %d already has an occurrence on %s (source date %s)", series.ID, target, o.SourceDate)
		}
	}
	return nil
}
