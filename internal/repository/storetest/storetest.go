// Package storetest: общий набор проверок для реализаций repository.Store
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
)

// Run прогоняет проверки на свежем хранилище, которое создаёт newStore
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("classes", func(t *testing.T) { testClasses(t, newStore(t)) })
	t.Run("series", func(t *testing.T) { testSeries(t, newStore(t)) })
	t.Run("overrides", func(t *testing.T) { testOverrides(t, newStore(t)) })
	t.Run("change log", func(t *testing.T) { testChangeLog(t, newStore(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func createClass(t *testing.T, store repository.Store, tz string) *model.Class {
	t.Helper()
	class := &model.Class{Name: "Pottery", Timezone: tz}
	require.NoError(t, store.Repos().Classes.Create(context.Background(), class))
	return class
}

func createSeries(t *testing.T, store repository.Store, class *model.Class) *model.EventSeries {
	t.Helper()
	loc, err := class.Location()
	require.NoError(t, err)

	series := &model.EventSeries{
		ClassID:   class.ID,
		LineageID: uuid.New(),
		Rule: recurrence.Rule{
			Freq:     recurrence.Weekly,
			Interval: 1,
			Weekdays: []time.Weekday{time.Monday},
			Start:    time.Date(2024, 1, 1, 9, 0, 0, 0, loc),
		},
		DurationMinutes: 60,
		Room:            "A-101",
	}
	require.NoError(t, store.Repos().Series.Create(context.Background(), series))
	return series
}

func testClasses(t *testing.T, store repository.Store) {
	ctx := context.Background()
	class := createClass(t, store, "Europe/Berlin")
	assert.NotZero(t, class.ID)
	assert.Equal(t, model.ClassStatusScheduled, class.Status)

	got, err := store.Repos().Classes.GetByID(ctx, class.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Europe/Berlin", got.Timezone)
	assert.Nil(t, got.StartDate)

	start, end := recurrence.NewDate(2024, 1, 1), recurrence.NewDate(2024, 6, 24)
	require.NoError(t, store.Repos().Classes.UpdateBounds(ctx, class.ID, &start, &end))
	require.NoError(t, store.Repos().Classes.UpdateStatus(ctx, class.ID, model.ClassStatusActive))

	got, err = store.Repos().Classes.GetByID(ctx, class.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartDate)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, start, *got.StartDate)
	assert.Equal(t, end, *got.EndDate)
	assert.Equal(t, model.ClassStatusActive, got.Status)

	missing, err := store.Repos().Classes.GetByID(ctx, class.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		locked, err := repos.Classes.GetForUpdate(ctx, class.ID)
		require.NoError(t, err)
		require.NotNil(t, locked)
		assert.Equal(t, model.ClassStatusActive, locked.Status)

		missing, err := repos.Classes.GetForUpdate(ctx, class.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)

	err = store.Repos().Classes.UpdateStatus(ctx, class.ID+1000, model.ClassStatusActive)
	assert.True(t, errors.Is(err, repository.ErrNoRows))

	list, err := store.Repos().Classes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testSeries(t *testing.T, store repository.Store) {
	ctx := context.Background()
	class := createClass(t, store, "America/Chicago")
	series := createSeries(t, store, class)

	assert.NotZero(t, series.ID)
	assert.Equal(t, int64(1), series.Version)
	assert.Contains(t, series.RawRule, "TZID=America/Chicago")

	got, err := store.Repos().Series.GetByID(ctx, series.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, got.RuleErr)
	assert.True(t, series.Rule.Equal(got.Rule))
	assert.Equal(t, "America/Chicago", got.Rule.Location().String())
	assert.Equal(t, series.LineageID, got.LineageID)

	until := recurrence.NewDate(2024, 1, 31)
	got.Rule = got.Rule.WithUntil(&until)
	ok, err := store.Repos().Series.Update(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), got.Version)

	// устаревшая версия не перезаписывает серию
	ok, err = store.Repos().Series.Update(ctx, series)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := store.Repos().Series.GetForUpdate(ctx, series.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Rule.Until)
	assert.Equal(t, until, *reloaded.Rule.Until)

	byClass, err := store.Repos().Series.GetByClassID(ctx, class.ID)
	require.NoError(t, err)
	assert.Len(t, byClass, 1)

	byLineage, err := store.Repos().Series.GetByLineageID(ctx, series.LineageID)
	require.NoError(t, err)
	assert.Len(t, byLineage, 1)

	missing, err := store.Repos().Series.GetByID(ctx, series.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testOverrides(t *testing.T, store repository.Store) {
	ctx := context.Background()
	class := createClass(t, store, "UTC")
	series := createSeries(t, store, class)
	repo := store.Repos().Overrides

	cancel := model.NewCancellation(series.ID, recurrence.NewDate(2024, 1, 15), "holiday")
	require.NoError(t, repo.Create(ctx, cancel))
	assert.NotZero(t, cancel.ID)

	move := model.NewMove(series.ID, recurrence.NewDate(2024, 1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 23, 11, 0, 0, 0, time.UTC), "B-2")
	require.NoError(t, repo.Create(ctx, move))

	dup := model.NewCancellation(series.ID, recurrence.NewDate(2024, 1, 15), "again")
	err := repo.Create(ctx, dup)
	assert.True(t, errors.Is(err, repository.ErrDuplicate), "got %v", err)

	got, err := repo.GetBySeriesAndDate(ctx, series.ID, recurrence.NewDate(2024, 1, 22))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Move)
	assert.Equal(t, model.OverrideMoved, got.Kind())
	assert.True(t, got.Move.NewStart.Equal(move.Move.NewStart))
	assert.Equal(t, "B-2", got.Move.Room)

	got.Move.NewStart = time.Date(2024, 1, 24, 10, 0, 0, 0, time.UTC)
	got.Move.NewEnd = time.Date(2024, 1, 24, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Update(ctx, got))

	all, err := repo.GetBySeriesID(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, recurrence.NewDate(2024, 1, 15), all[0].SourceDate)
	assert.Equal(t, "holiday", all[0].Cancellation.Reason)
	assert.Equal(t, 24, all[1].Move.NewStart.Day())

	kind := model.OverrideCancelled
	from := recurrence.NewDate(2024, 1, 10)
	filtered, err := repo.Find(ctx, repository.OverrideFilter{ClassID: &class.ID, Kind: &kind, From: &from})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, cancel.ID, filtered[0].ID)

	to := recurrence.NewDate(2024, 1, 20)
	filtered, err = repo.Find(ctx, repository.OverrideFilter{SeriesIDs: []int64{series.ID}, To: &to})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	require.NoError(t, repo.Delete(ctx, cancel.ID))
	deleted, err := repo.GetByID(ctx, cancel.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	assert.True(t, errors.Is(repo.Delete(ctx, cancel.ID), repository.ErrNoRows))
}

func testChangeLog(t *testing.T, store repository.Store) {
	ctx := context.Background()
	class := createClass(t, store, "UTC")
	series := createSeries(t, store, class)

	newValue := "2024-01-15"
	actor := int64(42)
	entries := []*model.ChangeLogEntry{
		{ClassID: class.ID, SeriesID: &series.ID, FieldName: model.ChangeSeriesCreated},
		{ClassID: class.ID, SeriesID: &series.ID, FieldName: model.ChangeEventCancelled, NewValue: &newValue, ActorID: &actor},
	}
	for _, e := range entries {
		require.NoError(t, store.Repos().ChangeLog.Append(ctx, e))
		assert.NotZero(t, e.ID)
	}

	got, err := store.Repos().ChangeLog.ListByClass(ctx, class.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ChangeEventCancelled, got[0].FieldName)
	require.NotNil(t, got[0].NewValue)
	assert.Equal(t, newValue, *got[0].NewValue)
	require.NotNil(t, got[0].ActorID)
	assert.Equal(t, actor, *got[0].ActorID)
	assert.Nil(t, got[1].OldValue)

	limited, err := store.Repos().ChangeLog.ListByClass(ctx, class.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testRollback(t *testing.T, store repository.Store) {
	ctx := context.Background()
	class := createClass(t, store, "UTC")
	series := createSeries(t, store, class)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o := model.NewCancellation(series.ID, recurrence.NewDate(2024, 1, 8), "")
		if err := repos.Overrides.Create(ctx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	overrides, err := store.Repos().Overrides.GetBySeriesID(ctx, series.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	err = store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Overrides.Create(ctx, model.NewCancellation(series.ID, recurrence.NewDate(2024, 1, 8), ""))
	})
	require.NoError(t, err)

	overrides, err = store.Repos().Overrides.GetBySeriesID(ctx, series.ID)
	require.NoError(t, err)
	assert.Len(t, overrides, 1)
}
