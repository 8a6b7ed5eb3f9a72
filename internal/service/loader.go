package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

func loadClass(ctx context.Context, repos repository.Repositories, classID int64) (*model.Class, *time.Location, error) {
	class, err := repos.Classes.GetByID(ctx, classID)
	if err != nil {
		return nil, nil, fmt.Errorf("get class: %w", err)
	}
	return classLocation(class, classID)
}

// lockClass читает класс с блокировкой строки. Берётся операциями, которые
// проверяют набор серий класса целиком, до чтения серий.
func lockClass(ctx context.Context, repos repository.Repositories, classID int64) (*model.Class, *time.Location, error) {
	class, err := repos.Classes.GetForUpdate(ctx, classID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock class: %w", err)
	}
	return classLocation(class, classID)
}

func classLocation(class *model.Class, classID int64) (*model.Class, *time.Location, error) {
	if class == nil {
		return nil, nil, apperrors.NewNotFound("class %d not found", classID)
	}

	loc, err := class.Location()
	if err != nil {
		return nil, nil, err
	}
	return class, loc, nil
}

// loadInputs загружает все серии класса вместе с их переопределениями
func loadInputs(ctx context.Context, repos repository.Repositories, classID int64) ([]timeline.SeriesInput, error) {
	series, err := repos.Series.GetByClassID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("get class series: %w", err)
	}
	if len(series) == 0 {
		return nil, nil
	}

	overrides, err := repos.Overrides.Find(ctx, repository.OverrideFilter{ClassID: &classID})
	if err != nil {
		return nil, fmt.Errorf("get class overrides: %w", err)
	}

	bySeries := make(map[int64][]*model.Override, len(series))
	for _, o := range overrides {
		bySeries[o.SeriesID] = append(bySeries[o.SeriesID], o)
	}

	inputs := make([]timeline.SeriesInput, 0, len(series))
	for _, s := range series {
		inputs = append(inputs, timeline.SeriesInput{Series: s, Overrides: bySeries[s.ID]})
	}
	return inputs, nil
}

// syncBounds пересчитывает даты первого и последнего занятия класса
func syncBounds(ctx context.Context, repos repository.Repositories, classID int64, loc *time.Location) error {
	inputs, err := loadInputs(ctx, repos, classID)
	if err != nil {
		return err
	}

	var start, end *recurrence.Date
	if first, last, ok := timeline.Bounds(inputs, loc); ok {
		start, end = &first, &last
	}

	if err := repos.Classes.UpdateBounds(ctx, classID, start, end); err != nil {
		return fmt.Errorf("sync class bounds: %w", err)
	}
	return nil
}

// today: текущая дата в зоне класса
func today(clock Clock, loc *time.Location) recurrence.Date {
	return recurrence.DateOf(clock.Now().In(loc))
}

func strPtr(s string) *string {
	return &s
}
