// Package export выгружает расписание класса в iCalendar (RFC 5545).
package export

import (
	"fmt"
	"io"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

const (
	ProductID = "-//Freeeeeet//class-scheduler//RU"
	uidDomain = "class-scheduler"

	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

const propertyRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")

// propertySetter: общая часть VEVENT, через которую пишутся свойства со временем
type propertySetter interface {
	SetProperty(property ical.ComponentProperty, value string, params ...ical.PropertyParameter)
	AddProperty(property ical.ComponentProperty, value string, params ...ical.PropertyParameter)
}

// SeriesUID: UID мастер-события серии; переносы используют тот же UID с RECURRENCE-ID
func SeriesUID(seriesID int64) string {
	return fmt.Sprintf("series-%d@%s", seriesID, uidDomain)
}

// NewClassCalendar собирает календарь класса: мастер-событие с RRULE на каждую серию,
// EXDATE для отменённых дат, отдельное событие на каждый перенос и VTIMEZONE
// для каждой зоны, на которую ссылаются события.
// Серии с повреждёнными правилами пропускаются и возвращаются вторым значением.
func NewClassCalendar(class *model.Class, inputs []timeline.SeriesInput, stamp time.Time) (*ical.Calendar, []timeline.SeriesError) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	zones := newZoneSet()
	var skipped []timeline.SeriesError
	for _, in := range inputs {
		if in.Series == nil {
			continue
		}
		if in.Series.RuleErr != nil {
			skipped = append(skipped, timeline.SeriesError{SeriesID: in.Series.ID, Err: in.Series.RuleErr})
			continue
		}
		if err := addSeries(cal, class, in, stamp, zones); err != nil {
			skipped = append(skipped, timeline.SeriesError{SeriesID: in.Series.ID, Err: err})
		}
	}

	// VTIMEZONE идут перед событиями, которые на них ссылаются
	cal.Components = append(zones.components(), cal.Components...)
	return cal, skipped
}

// WriteClassCalendar сериализует календарь класса в w
func WriteClassCalendar(w io.Writer, class *model.Class, inputs []timeline.SeriesInput, stamp time.Time) ([]timeline.SeriesError, error) {
	cal, skipped := NewClassCalendar(class, inputs, stamp)
	if err := cal.SerializeTo(w); err != nil {
		return skipped, fmt.Errorf("serialize calendar of class %d: %w", class.ID, err)
	}
	return skipped, nil
}

func addSeries(cal *ical.Calendar, class *model.Class, in timeline.SeriesInput, stamp time.Time, zones *zoneSet) error {
	series := in.Series
	rule := series.Rule
	loc := rule.Location()
	uid := SeriesUID(series.ID)

	// DTSTART всегда считается занятием, поэтому берётся первое занятие правила,
	// а не DTSTART серии: после разбиения он может не попадать в дни недели
	first, ok, err := recurrence.First(rule)
	if err != nil {
		return fmt.Errorf("find first occurrence: %w", err)
	}
	if !ok {
		return nil
	}

	master := cal.AddEvent(uid)
	master.SetDtStampTime(stamp)
	master.SetSummary(class.Name)
	if series.Room != "" {
		master.SetLocation(series.Room)
	}
	setTime(master, ical.ComponentPropertyDtStart, first, loc)
	setTime(master, ical.ComponentPropertyDtEnd, first.Add(series.Duration()), loc)
	master.AddRrule(recurrence.FormatRRule(rule))

	zones.cover(loc, first, seriesHorizon(rule, first, stamp))

	res := timeline.Resolve(in.Overrides)

	for _, d := range sortedDates(res.Cancelled) {
		base, ok, err := recurrence.OccursOn(rule, d)
		if err != nil {
			return fmt.Errorf("check cancelled date %s: %w", d, err)
		}
		if !ok {
			continue
		}
		addTime(master, ical.ComponentPropertyExdate, base, loc)
	}

	for _, m := range res.Moved {
		base, ok, err := recurrence.OccursOn(rule, m.SourceDate)
		if err != nil {
			return fmt.Errorf("check moved date %s: %w", m.SourceDate, err)
		}
		if !ok {
			// перенос с даты, которой правило больше не покрывает
			continue
		}

		room := m.Room
		if room == "" {
			room = series.Room
		}

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(class.Name)
		if room != "" {
			ev.SetLocation(room)
		}
		setTime(ev, propertyRecurrenceID, base, loc)
		setTime(ev, ical.ComponentPropertyDtStart, m.Start, loc)
		setTime(ev, ical.ComponentPropertyDtEnd, m.End, loc)
		zones.cover(loc, m.Start, m.End)
	}

	return nil
}

// seriesHorizon: последний момент, который может понадобиться описанию зоны серии.
// Бессрочная серия покрывается на два года вперёд от момента выгрузки.
func seriesHorizon(rule recurrence.Rule, first, stamp time.Time) time.Time {
	if rule.Until != nil {
		return rule.Until.EndIn(rule.Location())
	}
	from := stamp
	if first.After(from) {
		from = first
	}
	return from.AddDate(2, 0, 0)
}

func setTime(c propertySetter, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	value, params := timeValue(t, loc)
	c.SetProperty(prop, value, params...)
}

func addTime(c propertySetter, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	value, params := timeValue(t, loc)
	c.AddProperty(prop, value, params...)
}

// timeValue форматирует момент в локальном времени с TZID, а для UTC в форме с суффиксом Z
func timeValue(t time.Time, loc *time.Location) (string, []ical.PropertyParameter) {
	if isUTC(loc) {
		return t.UTC().Format(utcLayout), nil
	}
	tz := &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{loc.String()}}
	return t.In(loc).Format(localLayout), []ical.PropertyParameter{tz}
}

func isUTC(loc *time.Location) bool {
	return loc == nil || loc == time.UTC || loc.String() == "UTC"
}

func sortedDates(m map[recurrence.Date]*model.Override) []recurrence.Date {
	dates := make([]recurrence.Date, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, recurrence.Date.Compare)
	return dates
}
