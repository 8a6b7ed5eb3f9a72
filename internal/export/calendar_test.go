package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

var stamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func chicagoSeries(t *testing.T) *model.EventSeries {
	t.Helper()
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	rule, err := recurrence.Parse("DTSTART;TZID=America/Chicago:20240101T090000\nRRULE:FREQ=WEEKLY;BYDAY=MO", chicago)
	require.NoError(t, err)
	return &model.EventSeries{ID: 1, ClassID: 10, Rule: rule, DurationMinutes: 60, Room: "A-101"}
}

func parse(t *testing.T, buf *bytes.Buffer) []*ical.VEvent {
	t.Helper()
	cal, err := ical.ParseCalendar(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return cal.Events()
}

func value(ev *ical.VEvent, prop ical.ComponentProperty) string {
	p := ev.GetProperty(prop)
	if p == nil {
		return ""
	}
	return p.Value
}

func tzid(ev *ical.VEvent, prop ical.ComponentProperty) string {
	p := ev.GetProperty(prop)
	if p == nil || len(p.ICalParameters["TZID"]) == 0 {
		return ""
	}
	return p.ICalParameters["TZID"][0]
}

func TestWriteClassCalendar(t *testing.T) {
	series := chicagoSeries(t)
	chicago := series.Rule.Location()

	cancel := model.NewCancellation(1, recurrence.NewDate(2024, 1, 15), "holiday")
	move := model.NewMove(1, recurrence.NewDate(2024, 1, 22),
		time.Date(2024, 1, 23, 10, 0, 0, 0, chicago).UTC(),
		time.Date(2024, 1, 23, 11, 0, 0, 0, chicago).UTC(), "")
	// перенос с даты, на которую правило не попадает
	inert := model.NewMove(1, recurrence.NewDate(2024, 1, 24),
		time.Date(2024, 1, 25, 10, 0, 0, 0, chicago).UTC(),
		time.Date(2024, 1, 25, 11, 0, 0, 0, chicago).UTC(), "B-2")

	broken := &model.EventSeries{ID: 2, ClassID: 10, RawRule: "RRULE:FREQ=YEARLY", RuleErr: errors.New("malformed")}

	class := &model.Class{ID: 10, Name: "Algebra", Timezone: "America/Chicago"}
	inputs := []timeline.SeriesInput{
		{Series: series, Overrides: []*model.Override{cancel, move, inert}},
		{Series: broken},
	}

	var buf bytes.Buffer
	skipped, err := WriteClassCalendar(&buf, class, inputs, stamp)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(2), skipped[0].SeriesID)

	assert.Contains(t, buf.String(), "METHOD:PUBLISH")

	events := parse(t, &buf)
	require.Len(t, events, 2)

	master, moved := events[0], events[1]
	assert.Equal(t, SeriesUID(1), value(master, ical.ComponentPropertyUniqueId))
	assert.Equal(t, "series-1@class-scheduler", value(master, ical.ComponentPropertyUniqueId))
	assert.Equal(t, "Algebra", value(master, ical.ComponentPropertySummary))
	assert.Equal(t, "A-101", value(master, ical.ComponentPropertyLocation))
	assert.Equal(t, "20240101T090000", value(master, ical.ComponentPropertyDtStart))
	assert.Equal(t, "America/Chicago", tzid(master, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20240101T100000", value(master, ical.ComponentPropertyDtEnd))

	rrule := value(master, ical.ComponentPropertyRrule)
	assert.Contains(t, rrule, "FREQ=WEEKLY")
	assert.Contains(t, rrule, "BYDAY=MO")
	assert.NotContains(t, rrule, "DTSTART")

	exdates := master.GetProperties(ical.ComponentPropertyExdate)
	require.Len(t, exdates, 1)
	assert.Equal(t, "20240115T090000", exdates[0].Value)

	assert.Equal(t, SeriesUID(1), value(moved, ical.ComponentPropertyUniqueId))
	assert.Equal(t, "20240122T090000", value(moved, propertyRecurrenceID))
	assert.Equal(t, "America/Chicago", tzid(moved, propertyRecurrenceID))
	assert.Equal(t, "20240123T100000", value(moved, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20240123T110000", value(moved, ical.ComponentPropertyDtEnd))
	assert.Equal(t, "A-101", value(moved, ical.ComponentPropertyLocation))

	out := buf.String()
	assert.Contains(t, out, "BEGIN:VTIMEZONE")
	assert.Contains(t, out, "TZID:America/Chicago")
	assert.Less(t, strings.Index(out, "BEGIN:VTIMEZONE"), strings.Index(out, "BEGIN:VEVENT"))
}

func TestWriteClassCalendarDescribesZone(t *testing.T) {
	series := chicagoSeries(t)
	until := recurrence.NewDate(2024, 12, 31)
	series.Rule = series.Rule.WithUntil(&until)
	class := &model.Class{ID: 10, Name: "Algebra", Timezone: "America/Chicago"}

	cal, skipped := NewClassCalendar(class, []timeline.SeriesInput{{Series: series}}, stamp)
	require.Empty(t, skipped)

	zones := cal.Timezones()
	require.Len(t, zones, 1)
	assert.Equal(t, "America/Chicago", zones[0].GetProperty(ical.ComponentPropertyTzid).Value)

	type observance struct {
		kind, dtstart, from, to, name string
	}
	var got []observance
	for _, c := range zones[0].Components {
		var (
			kind string
			base *ical.ComponentBase
		)
		switch o := c.(type) {
		case *ical.Standard:
			kind, base = "STANDARD", &o.ComponentBase
		case *ical.Daylight:
			kind, base = "DAYLIGHT", &o.ComponentBase
		default:
			t.Fatalf("unexpected component %T", c)
		}
		got = append(got, observance{
			kind:    kind,
			dtstart: base.GetProperty(ical.ComponentPropertyDtStart).Value,
			from:    base.GetProperty(propertyTzOffsetFrom).Value,
			to:      base.GetProperty(propertyTzOffsetTo).Value,
			name:    base.GetProperty(propertyTzName).Value,
		})
	}

	assert.Equal(t, []observance{
		{"STANDARD", "20240101T000000", "-0600", "-0600", "CST"},
		{"DAYLIGHT", "20240310T020000", "-0600", "-0500", "CDT"},
		{"STANDARD", "20241103T020000", "-0500", "-0600", "CST"},
	}, got)
}

func TestWriteClassCalendarStartsAtFirstOccurrence(t *testing.T) {
	// серия после разбиения: DTSTART перенесён на четверг 2024-02-01, занятия по вторникам
	rule, err := recurrence.Parse("DTSTART:20240102T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=TU", time.UTC)
	require.NoError(t, err)
	rule = rule.WithStartDate(recurrence.NewDate(2024, 2, 1))

	series := &model.EventSeries{ID: 4, ClassID: 1, Rule: rule, DurationMinutes: 60}
	class := &model.Class{ID: 1, Name: "Ceramics"}

	var buf bytes.Buffer
	skipped, err := WriteClassCalendar(&buf, class, []timeline.SeriesInput{{Series: series}}, stamp)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	events := parse(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "20240206T090000Z", value(events[0], ical.ComponentPropertyDtStart))
	assert.Equal(t, "20240206T100000Z", value(events[0], ical.ComponentPropertyDtEnd))
	assert.Contains(t, value(events[0], ical.ComponentPropertyRrule), "BYDAY=TU")
	assert.NotContains(t, buf.String(), "BEGIN:VTIMEZONE")
}

func TestWriteClassCalendarSkipsSeriesWithoutOccurrences(t *testing.T) {
	rule, err := recurrence.Parse("DTSTART:20240102T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=TU", time.UTC)
	require.NoError(t, err)
	until := recurrence.NewDate(2024, 2, 5)
	rule = rule.WithStartDate(recurrence.NewDate(2024, 2, 1)).WithUntil(&until)

	series := &model.EventSeries{ID: 5, ClassID: 1, Rule: rule, DurationMinutes: 60}
	cal, skipped := NewClassCalendar(&model.Class{ID: 1, Name: "Ceramics"}, []timeline.SeriesInput{{Series: series}}, stamp)
	assert.Empty(t, skipped)
	assert.Empty(t, cal.Events())
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "+0000", formatOffset(0))
	assert.Equal(t, "-0600", formatOffset(-6*3600))
	assert.Equal(t, "+0530", formatOffset(5*3600+30*60))
	assert.Equal(t, "+004430", formatOffset(44*60+30))
}

func TestTransitionsOfFixedZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo)
	assert.Empty(t, transitions(tokyo, start, start.AddDate(2, 0, 0)))
}

func TestWriteClassCalendarUTC(t *testing.T) {
	until := recurrence.NewDate(2024, 1, 31)
	rule, err := recurrence.Parse("DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;INTERVAL=2", time.UTC)
	require.NoError(t, err)
	rule = rule.WithUntil(&until)

	series := &model.EventSeries{ID: 3, ClassID: 1, Rule: rule, DurationMinutes: 45}
	class := &model.Class{ID: 1, Name: "Chemistry"}

	var buf bytes.Buffer
	skipped, err := WriteClassCalendar(&buf, class, []timeline.SeriesInput{{Series: series}}, stamp)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.NotContains(t, buf.String(), "BEGIN:VTIMEZONE")

	events := parse(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "20240101T090000Z", value(events[0], ical.ComponentPropertyDtStart))
	assert.Empty(t, tzid(events[0], ical.ComponentPropertyDtStart))
	assert.Equal(t, "20240101T094500Z", value(events[0], ical.ComponentPropertyDtEnd))
	assert.Contains(t, value(events[0], ical.ComponentPropertyRrule), "UNTIL=20240131T235959Z")
	assert.Nil(t, events[0].GetProperty(ical.ComponentPropertyLocation))
}
