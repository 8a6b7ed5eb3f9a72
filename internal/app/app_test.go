package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/pressly/goose/v3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/config"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/service"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

var now = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) (*Database, *Services) {
	t.Helper()
	cfg := &config.Config{DBDriver: config.DriverSQLite, DBDSN: ":memory:", LookaheadDays: 365}

	db, err := OpenDatabase(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := service.ClockFunc(func() time.Time { return now })
	return db, NewServices(db.Store, cfg, clock, zap.NewNop())
}

func TestMigratorOnSQLite(t *testing.T) {
	db, _ := openSQLite(t)
	ctx := context.Background()

	// повторный прогон ничего не применяет
	require.NoError(t, db.Migrator.Run(ctx))

	version, err := db.Migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	statuses, err := db.Migrator.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, st := range statuses {
		assert.Equal(t, goose.StateApplied, st.State)
	}
}

func TestOpenDatabaseUnsupportedDriver(t *testing.T) {
	_, err := OpenDatabase(context.Background(), &config.Config{DBDriver: "mysql", DBDSN: "x"}, zap.NewNop())
	require.Error(t, err)
}

func TestPublishFeeds(t *testing.T) {
	_, services := openSQLite(t)
	ctx := context.Background()

	class, err := services.Series.CreateClass(ctx, "Pottery", "Europe/Berlin")
	require.NoError(t, err)
	rule, err := services.Series.ParseRule(ctx, class.ID, "DTSTART;TZID=Local:20240102T180000\nRRULE:FREQ=WEEKLY;BYDAY=TU")
	require.NoError(t, err)
	series, err := services.Series.CreateSeries(ctx, class.ID, rule, 90, "Studio")
	require.NoError(t, err)
	_, err = services.Series.Cancel(ctx, series.ID, recurrence.NewDate(2024, 1, 9), "")
	require.NoError(t, err)

	empty, err := services.Series.CreateClass(ctx, "Empty", "UTC")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	scheduler := NewScheduler(services.Timeline, fs, "/feeds", "@every 1h", service.ClockFunc(func() time.Time { return now }), zap.NewNop())

	published, err := scheduler.PublishFeeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	data, err := afero.ReadFile(fs, FeedPath("/feeds", class.ID))
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Pottery", events[0].GetProperty(ical.ComponentPropertySummary).Value)
	exdates := events[0].GetProperties(ical.ComponentPropertyExdate)
	require.Len(t, exdates, 1)
	assert.Equal(t, "20240109T180000", exdates[0].Value)

	ok, err := afero.Exists(fs, FeedPath("/feeds", empty.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	// временные файлы не остаются
	files, err := afero.ReadDir(fs, "/feeds")
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, ".ics", filepath.Ext(f.Name()))
	}
}

func TestPublishFeedsOverwrites(t *testing.T) {
	_, services := openSQLite(t)
	ctx := context.Background()

	class, err := services.Series.CreateClass(ctx, "Drawing", "UTC")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, FeedPath("/feeds", class.ID), []byte("stale"), 0o644))

	scheduler := NewScheduler(services.Timeline, fs, "/feeds", "@every 1h", nil, zap.NewNop())
	require.NoError(t, scheduler.PublishClass(ctx, class.ID))

	data, err := afero.ReadFile(fs, FeedPath("/feeds", class.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VCALENDAR")
}

func TestSchedulerStart(t *testing.T) {
	_, services := openSQLite(t)

	disabled := NewScheduler(services.Timeline, afero.NewMemMapFs(), "", "@every 1h", nil, zap.NewNop())
	require.NoError(t, disabled.Start(context.Background()))
	disabled.Stop()

	invalid := NewScheduler(services.Timeline, afero.NewMemMapFs(), "/feeds", "not a cron spec", nil, zap.NewNop())
	require.Error(t, invalid.Start(context.Background()))
}

// blockingSource держит первую публикацию, пока тест её не отпустит
type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListClasses(ctx context.Context) ([]*model.Class, error) {
	close(b.started)
	<-b.release
	return nil, nil
}

func (b *blockingSource) ClassInputs(ctx context.Context, classID int64) (*model.Class, *time.Location, []timeline.SeriesInput, error) {
	return nil, nil, nil, nil
}

func TestSchedulerStopWaitsForFirstPublish(t *testing.T) {
	source := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(source, afero.NewMemMapFs(), "/feeds", "@every 1h", nil, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-source.started:
	case <-time.After(time.Second):
		t.Fatal("first publish did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the first publish was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(source.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the first publish finished")
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(env)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
