package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

// TimelineService отвечает на запросы о фактическом расписании. Чтение блокировок не берёт.
type TimelineService struct {
	store     repository.Store
	clock     Clock
	lookahead time.Duration
	logger    *zap.Logger
}

func NewTimelineService(store repository.Store, clock Clock, lookahead time.Duration, logger *zap.Logger) *TimelineService {
	if clock == nil {
		clock = SystemClock{}
	}
	if lookahead <= 0 {
		lookahead = timeline.DefaultLookahead
	}
	return &TimelineService{
		store:     store,
		clock:     clock,
		lookahead: lookahead,
		logger:    logger,
	}
}

// GetClass получает класс по ID
func (s *TimelineService) GetClass(ctx context.Context, classID int64) (*model.Class, error) {
	class, _, err := loadClass(ctx, s.store.Repos(), classID)
	return class, err
}

func (s *TimelineService) ListClasses(ctx context.Context) ([]*model.Class, error) {
	classes, err := s.store.Repos().Classes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListSeries получает все серии класса, включая закрытые
func (s *TimelineService) ListSeries(ctx context.Context, classID int64) ([]*model.EventSeries, error) {
	repos := s.store.Repos()
	if _, _, err := loadClass(ctx, repos, classID); err != nil {
		return nil, err
	}
	series, err := repos.Series.GetByClassID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("get class series: %w", err)
	}
	return series, nil
}

// Today возвращает текущую дату в зоне класса
func (s *TimelineService) Today(ctx context.Context, classID int64) (recurrence.Date, error) {
	_, loc, err := loadClass(ctx, s.store.Repos(), classID)
	if err != nil {
		return recurrence.Date{}, err
	}
	return today(s.clock, loc), nil
}

// SeriesToday возвращает текущую дату в зоне класса, которому принадлежит серия
func (s *TimelineService) SeriesToday(ctx context.Context, seriesID int64) (recurrence.Date, error) {
	series, err := s.store.Repos().Series.GetByID(ctx, seriesID)
	if err != nil {
		return recurrence.Date{}, fmt.Errorf("get series: %w", err)
	}
	if series == nil {
		return recurrence.Date{}, apperrors.NewNotFound("series %d not found", seriesID)
	}
	return s.Today(ctx, series.ClassID)
}

// SeriesTimeline строит расписание одной серии за даты [from, to] в зоне класса
func (s *TimelineService) SeriesTimeline(ctx context.Context, seriesID int64, from, to recurrence.Date) (timeline.Timeline, error) {
	if to.Before(from) {
		return nil, apperrors.NewValidation("window end %s is before start %s", to, from)
	}

	repos := s.store.Repos()
	series, err := repos.Series.GetByID(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	if series == nil {
		return nil, apperrors.NewNotFound("series %d not found", seriesID)
	}
	_, loc, err := loadClass(ctx, repos, series.ClassID)
	if err != nil {
		return nil, err
	}

	overrides, err := repos.Overrides.GetBySeriesID(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("get overrides: %w", err)
	}

	tl, err := timeline.Build(series, overrides, from.StartIn(loc), to.EndIn(loc))
	if err != nil {
		return nil, err
	}
	return inZone(tl, loc), nil
}

// ClassTimeline строит расписание класса за даты [from, to] в зоне класса.
// Серии с повреждёнными правилами попадают в Errors и не мешают остальным.
func (s *TimelineService) ClassTimeline(ctx context.Context, classID int64, from, to recurrence.Date) (timeline.ClassTimeline, error) {
	if to.Before(from) {
		return timeline.ClassTimeline{}, apperrors.NewValidation("window end %s is before start %s", to, from)
	}

	_, loc, inputs, err := s.ClassInputs(ctx, classID)
	if err != nil {
		return timeline.ClassTimeline{}, err
	}

	ct := timeline.BuildClass(inputs, from.StartIn(loc), to.EndIn(loc))
	s.logSeriesErrors(classID, ct.Errors)
	ct.Occurrences = inZone(ct.Occurrences, loc)
	return ct, nil
}

// NextOccurrence возвращает ближайшее занятие класса после after (после текущего момента, если after нулевой)
func (s *TimelineService) NextOccurrence(ctx context.Context, classID int64, after time.Time) (*model.ResolvedOccurrence, []timeline.SeriesError, error) {
	if after.IsZero() {
		after = s.clock.Now()
	}

	_, loc, inputs, err := s.ClassInputs(ctx, classID)
	if err != nil {
		return nil, nil, err
	}

	occ, ok, errs := timeline.NextInClass(inputs, after, s.lookahead)
	s.logSeriesErrors(classID, errs)
	if !ok {
		return nil, errs, nil
	}

	occ.Start = occ.Start.In(loc)
	occ.End = occ.End.In(loc)
	return &occ, errs, nil
}

// ListOverrides получает переопределения по фильтру
func (s *TimelineService) ListOverrides(ctx context.Context, filter repository.OverrideFilter) ([]*model.Override, error) {
	overrides, err := s.store.Repos().Overrides.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return overrides, nil
}

// ChangeLog получает последние изменения расписания класса
func (s *TimelineService) ChangeLog(ctx context.Context, classID int64, limit int) ([]*model.ChangeLogEntry, error) {
	repos := s.store.Repos()
	if _, _, err := loadClass(ctx, repos, classID); err != nil {
		return nil, err
	}
	entries, err := repos.ChangeLog.ListByClass(ctx, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("get change log: %w", err)
	}
	return entries, nil
}

// ClassInputs загружает класс, его зону и все серии с переопределениями
func (s *TimelineService) ClassInputs(ctx context.Context, classID int64) (*model.Class, *time.Location, []timeline.SeriesInput, error) {
	repos := s.store.Repos()
	class, loc, err := loadClass(ctx, repos, classID)
	if err != nil {
		return nil, nil, nil, err
	}

	inputs, err := loadInputs(ctx, repos, classID)
	if err != nil {
		return nil, nil, nil, err
	}
	return class, loc, inputs, nil
}

func (s *TimelineService) logSeriesErrors(classID int64, errs []timeline.SeriesError) {
	for _, e := range errs {
		s.logger.Warn("Series skipped in class timeline",
			zap.Int64("class_id", classID),
			zap.Int64("series_id", e.SeriesID),
			zap.Error(e.Err),
		)
	}
}

// inZone переводит моменты занятий в зону класса (переносы хранятся в UTC)
func inZone(tl timeline.Timeline, loc *time.Location) timeline.Timeline {
	for i := range tl {
		tl[i].Start = tl[i].Start.In(loc)
		tl[i].End = tl[i].End.In(loc)
	}
	return tl
}
