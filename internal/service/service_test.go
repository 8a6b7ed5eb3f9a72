package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/repository/sqlite"
)

type fixture struct {
	store     *sqlite.Store
	now       time.Time
	series    *SeriesService
	timelines *TimelineService
	class     *model.Class
	monday    *model.EventSeries
}

func (f *fixture) Now() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	f.series = NewSeriesService(store, f, zap.NewNop())
	f.timelines = NewTimelineService(store, f, 0, zap.NewNop())

	f.class, err = f.series.CreateClass(ctx, "Ceramics", "UTC")
	require.NoError(t, err)

	rule, err := f.series.ParseRule(ctx, f.class.ID, "DTSTART;TZID=Local:20240101T090000\nRRULE:FREQ=WEEKLY;BYDAY=MO")
	require.NoError(t, err)
	f.monday, err = f.series.CreateSeries(ctx, f.class.ID, rule, 60, "A-101")
	require.NoError(t, err)

	return f
}

func date(m time.Month, d int) recurrence.Date {
	return recurrence.NewDate(2024, m, d)
}

func (f *fixture) januaryDates(t *testing.T) []string {
	t.Helper()
	ct, err := f.timelines.ClassTimeline(context.Background(), f.class.ID, date(1, 1), date(1, 31))
	require.NoError(t, err)
	require.Empty(t, ct.Errors)

	var out []string
	for _, o := range ct.Occurrences.Active() {
		out = append(out, recurrence.DateOf(o.Start).String())
	}
	return out
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), "error: %v", err)
}

func TestCreateSeriesSyncsClassBounds(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, f.januaryDates(t))

	class, err := f.timelines.GetClass(context.Background(), f.class.ID)
	require.NoError(t, err)
	require.NotNil(t, class.StartDate)
	assert.Equal(t, date(1, 1), *class.StartDate)
	require.NotNil(t, class.EndDate)
	assert.Equal(t, 2029, class.EndDate.Year)
}

func TestCreateSeriesRejectsSecondActiveSeries(t *testing.T) {
	f := newFixture(t)

	_, err := f.series.CreateSeries(context.Background(), f.class.ID, f.monday.Rule, 60, "")
	assertKind(t, err, apperrors.KindConflict)
}

func TestCreateSeriesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.series.CreateSeries(ctx, f.class.ID, recurrence.Rule{Freq: recurrence.Weekly, Interval: 1, Start: f.now}, 60, "")
	assertKind(t, err, apperrors.KindInvalidRule)

	_, err = f.series.CreateSeries(ctx, f.class.ID, f.monday.Rule, 0, "")
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.series.CreateSeries(ctx, f.class.ID+100, f.monday.Rule, 60, "")
	assertKind(t, err, apperrors.KindNotFound)

	_, err = f.series.CreateClass(ctx, "Nowhere", "Mars/Olympus")
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.series.ParseRule(ctx, f.class.ID, "RRULE:FREQ=YEARLY")
	assertKind(t, err, apperrors.KindMalformedRule)
}

func TestCancelOccurrence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	override, err := f.series.Cancel(ctx, f.monday.ID, date(1, 15), "holiday")
	require.NoError(t, err)
	assert.Equal(t, model.OverrideCancelled, override.Kind())

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-22", "2024-01-29"}, f.januaryDates(t))

	ct, err := f.timelines.ClassTimeline(ctx, f.class.ID, date(1, 1), date(1, 31))
	require.NoError(t, err)
	cancelled := ct.Occurrences.Cancelled()
	require.Len(t, cancelled, 1)
	assert.Equal(t, date(1, 15), cancelled[0].SourceDate)
	assert.Equal(t, "holiday", cancelled[0].Reason)

	_, err = f.series.Cancel(ctx, f.monday.ID, date(1, 15), "again")
	assertKind(t, err, apperrors.KindConflict)

	_, err = f.series.Cancel(ctx, f.monday.ID, date(1, 16), "")
	assertKind(t, err, apperrors.KindNotFound)

	_, err = f.series.Cancel(ctx, f.monday.ID+100, date(1, 15), "")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestRescheduleOccurrence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	override, err := f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 23, 11, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, model.OverrideMoved, override.Kind())

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-23", "2024-01-29"}, f.januaryDates(t))

	tl, err := f.timelines.SeriesTimeline(ctx, f.monday.ID, date(1, 23), date(1, 23))
	require.NoError(t, err)
	require.Len(t, tl, 1)
	assert.Equal(t, model.OccurrenceMoved, tl[0].Status)
	assert.Equal(t, date(1, 22), tl[0].SourceDate)
	assert.Equal(t, "A-101", tl[0].Room)
}

func TestRescheduleUpdatesExistingMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 23, 11, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)

	second, err := f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 24, 12, 0, 0, 0, time.UTC), time.Date(2024, 1, 24, 13, 0, 0, 0, time.UTC), "B-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	overrides, err := f.timelines.ListOverrides(ctx, repository.OverrideFilter{SeriesIDs: []int64{f.monday.ID}})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, 24, overrides[0].Move.NewStart.Day())
	assert.Equal(t, "B-2", overrides[0].Move.Room)

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-24", "2024-01-29"}, f.januaryDates(t))
}

func TestRescheduleConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// на 29-е уже есть занятие по правилу
	_, err := f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 29, 15, 0, 0, 0, time.UTC), time.Date(2024, 1, 29, 16, 0, 0, 0, time.UTC), "")
	assertKind(t, err, apperrors.KindConflict)

	// другое время в тот же день не конфликтует с самим собой
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 22, 15, 0, 0, 0, time.UTC), time.Date(2024, 1, 22, 16, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)

	// на 30-е перенесём 29-е, после этого 15-е туда уже не перенести
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 29),
		time.Date(2024, 1, 30, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 30, 10, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 15),
		time.Date(2024, 1, 30, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 30, 19, 0, 0, 0, time.UTC), "")
	assertKind(t, err, apperrors.KindConflict)

	// а на отменённую дату можно
	_, err = f.series.Cancel(ctx, f.monday.ID, date(1, 8), "")
	require.NoError(t, err)
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 15),
		time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 19, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)

	// отменённое занятие нельзя перенести без восстановления
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 8),
		time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC), "")
	assertKind(t, err, apperrors.KindConflict)

	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 1),
		time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), "")
	assertKind(t, err, apperrors.KindValidation)
}

func TestRestoreReturnsTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.januaryDates(t)

	cancel, err := f.series.Cancel(ctx, f.monday.ID, date(1, 15), "")
	require.NoError(t, err)
	move, err := f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 23, 11, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.NotEqual(t, before, f.januaryDates(t))

	require.NoError(t, f.series.Restore(ctx, cancel.ID))
	require.NoError(t, f.series.Restore(ctx, move.ID))
	assert.Equal(t, before, f.januaryDates(t))

	assertKind(t, f.series.Restore(ctx, cancel.ID), apperrors.KindNotFound)
}

func TestSplitSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tuesday, err := f.series.ParseRule(ctx, f.class.ID, "DTSTART:20240102T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=TU")
	require.NoError(t, err)

	next, err := f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{Rule: tuesday, Cutover: date(2, 1)})
	require.NoError(t, err)
	assert.Equal(t, f.monday.LineageID, next.LineageID)
	assert.Equal(t, 60, next.DurationMinutes)
	assert.Equal(t, "A-101", next.Room)

	series, err := f.timelines.ListSeries(ctx, f.class.ID)
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.NotNil(t, series[0].Rule.Until)
	assert.Equal(t, date(1, 31), *series[0].Rule.Until)

	old, err := f.timelines.SeriesTimeline(ctx, f.monday.ID, date(1, 1), date(3, 31))
	require.NoError(t, err)
	assert.Equal(t, date(1, 29), old[len(old)-1].SourceDate)

	occ, _, err := f.timelines.NextOccurrence(ctx, f.class.ID, date(1, 30).StartIn(time.UTC))
	require.NoError(t, err)
	require.NotNil(t, occ)
	assert.Equal(t, next.ID, occ.SeriesID)
	assert.Equal(t, date(2, 6), occ.SourceDate)

	ct, err := f.timelines.ClassTimeline(ctx, f.class.ID, date(1, 1), date(3, 31))
	require.NoError(t, err)
	for _, o := range ct.Occurrences {
		if o.SourceDate.Before(date(2, 1)) {
			assert.Equal(t, f.monday.ID, o.SeriesID)
		} else {
			assert.Equal(t, next.ID, o.SeriesID)
		}
	}

	// старая серия закончилась до нового разбиения
	_, err = f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{Rule: tuesday, Cutover: date(3, 1)})
	assertKind(t, err, apperrors.KindConflict)
}

func TestSplitSeriesKeepsOverridesBeforeCutover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.series.Cancel(ctx, f.monday.ID, date(1, 15), "")
	require.NoError(t, err)
	_, err = f.series.Cancel(ctx, f.monday.ID, date(2, 5), "")
	require.NoError(t, err)

	tuesday, err := f.series.ParseRule(ctx, f.class.ID, "DTSTART:20240102T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=TU")
	require.NoError(t, err)
	_, err = f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{Rule: tuesday, Cutover: date(2, 1), Room: "C-3", DurationMinutes: 90})
	require.NoError(t, err)

	ct, err := f.timelines.ClassTimeline(ctx, f.class.ID, date(1, 1), date(2, 15))
	require.NoError(t, err)

	var dates []string
	for _, o := range ct.Occurrences.Active() {
		dates = append(dates, o.SourceDate.String())
		if !o.SourceDate.Before(date(2, 1)) {
			assert.Equal(t, "C-3", o.Room)
			assert.Equal(t, 90*time.Minute, o.End.Sub(o.Start))
		}
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-22", "2024-01-29", "2024-02-06", "2024-02-13"}, dates)
}

func TestSplitSeriesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{
		Rule:    recurrence.Rule{Freq: recurrence.Monthly, Interval: 0, Start: f.now},
		Cutover: date(2, 1),
	})
	assertKind(t, err, apperrors.KindInvalidRule)

	f.now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err = f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{Rule: f.monday.Rule, Cutover: date(2, 1)})
	assertKind(t, err, apperrors.KindPastCutover)
	assert.True(t, errors.Is(err, apperrors.ErrPastCutover))

	_, err = f.series.SplitSeries(ctx, f.monday.ID, SplitRequest{Rule: f.monday.Rule, Cutover: date(2, 1), AllowPastCutover: true})
	require.NoError(t, err)
}

func TestCloseClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.now = time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)

	assertKind(t, f.series.CloseClass(ctx, f.class.ID, model.ClassStatusPaused), apperrors.KindValidation)
	require.NoError(t, f.series.CloseClass(ctx, f.class.ID, model.ClassStatusCompleted))

	class, err := f.timelines.GetClass(ctx, f.class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClassStatusCompleted, class.Status)
	require.NotNil(t, class.EndDate)
	assert.Equal(t, date(1, 15), *class.EndDate)

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15"}, f.januaryDates(t))

	_, err = f.series.Cancel(ctx, f.monday.ID, date(1, 8), "")
	assertKind(t, err, apperrors.KindConflict)
	assertKind(t, f.series.CloseClass(ctx, f.class.ID, model.ClassStatusCancelled), apperrors.KindConflict)
}

func TestChangeLogRecordsEveryMutation(t *testing.T) {
	f := newFixture(t)
	ctx := WithActor(context.Background(), 7)

	cancel, err := f.series.Cancel(ctx, f.monday.ID, date(1, 15), "")
	require.NoError(t, err)
	_, err = f.series.Reschedule(ctx, f.monday.ID, date(1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 23, 11, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.NoError(t, f.series.Restore(ctx, cancel.ID))

	entries, err := f.timelines.ChangeLog(ctx, f.class.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	fields := []model.ChangeField{entries[0].FieldName, entries[1].FieldName, entries[2].FieldName, entries[3].FieldName}
	assert.Equal(t, []model.ChangeField{
		model.ChangeEventRestored,
		model.ChangeEventRescheduled,
		model.ChangeEventCancelled,
		model.ChangeSeriesCreated,
	}, fields)

	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, int64(7), *entries[0].ActorID)
	assert.Nil(t, entries[3].ActorID)
	require.NotNil(t, entries[1].OldValue)
	assert.Equal(t, "2024-01-22T09:00:00Z", *entries[1].OldValue)
}

func TestConcurrentCancelsAllowOnlyOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.series.Cancel(ctx, f.monday.ID, date(1, 15), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.KindOf(err) == apperrors.KindConflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)
}

func TestClassTimelineReportsBrokenSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, `INSERT INTO event_series (class_id, lineage_id, rule, duration_minutes, room, created_at, updated_at)
		VALUES (?, '6f1c1c5e-8d7a-4d43-9a51-3f0c2b0f7a11', 'RRULE:FREQ=YEARLY', 60, '', '2024-01-01T00:00:00.000000000Z', '2024-01-01T00:00:00.000000000Z')`,
		f.class.ID)
	require.NoError(t, err)

	ct, err := f.timelines.ClassTimeline(ctx, f.class.ID, date(1, 1), date(1, 31))
	require.NoError(t, err)
	assert.Len(t, ct.Occurrences, 5)
	require.Len(t, ct.Errors, 1)
	assert.True(t, errors.Is(ct.Errors[0], apperrors.ErrMalformedRule))

	brokenID := ct.Errors[0].SeriesID
	_, err = f.timelines.SeriesTimeline(ctx, brokenID, date(1, 1), date(1, 31))
	assertKind(t, err, apperrors.KindMalformedRule)

	_, err = f.series.Cancel(ctx, brokenID, date(1, 1), "")
	assertKind(t, err, apperrors.KindMalformedRule)
}

func TestTimelineWindowValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.timelines.ClassTimeline(context.Background(), f.class.ID, date(2, 1), date(1, 1))
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.timelines.ClassTimeline(context.Background(), f.class.ID+100, date(1, 1), date(1, 2))
	assertKind(t, err, apperrors.KindNotFound)
}

func TestNextOccurrenceUsesClock(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	_, err := f.series.Cancel(context.Background(), f.monday.ID, date(1, 15), "")
	require.NoError(t, err)

	occ, errs, err := f.timelines.NextOccurrence(context.Background(), f.class.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.NotNil(t, occ)
	assert.Equal(t, date(1, 22), occ.SourceDate)
}
