package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	propertyTzOffsetFrom = ical.ComponentProperty(ical.PropertyTzoffsetfrom)
	propertyTzOffsetTo   = ical.ComponentProperty(ical.PropertyTzoffsetto)
	propertyTzName       = ical.ComponentProperty(ical.PropertyTzname)
)

// zoneSpan: промежуток времени, который должен описывать VTIMEZONE зоны
type zoneSpan struct {
	loc      *time.Location
	from, to time.Time
}

// zoneSet собирает зоны, на которые ссылаются TZID событий, в порядке появления
type zoneSet struct {
	order []string
	spans map[string]*zoneSpan
}

func newZoneSet() *zoneSet {
	return &zoneSet{spans: make(map[string]*zoneSpan)}
}

// cover расширяет промежуток зоны loc до [from, to]. UTC пишется с суффиксом Z и VTIMEZONE не требует.
func (z *zoneSet) cover(loc *time.Location, from, to time.Time) {
	if isUTC(loc) {
		return
	}
	name := loc.String()
	span, ok := z.spans[name]
	if !ok {
		z.spans[name] = &zoneSpan{loc: loc, from: from, to: to}
		z.order = append(z.order, name)
		return
	}
	if from.Before(span.from) {
		span.from = from
	}
	if to.After(span.to) {
		span.to = to
	}
}

func (z *zoneSet) components() []ical.Component {
	out := make([]ical.Component, 0, len(z.order))
	for _, name := range z.order {
		out = append(out, newTimezone(z.spans[name]))
	}
	return out
}

// transition: смена смещения зоны в момент at
type transition struct {
	at       time.Time
	from, to int
	name     string
	dst      bool
}

// newTimezone описывает зону явными переходами за годы промежутка span:
// начальное наблюдение на 1 января первого года и по одному на каждую смену смещения
func newTimezone(span *zoneSpan) *ical.VTimezone {
	loc := span.loc
	start := time.Date(span.from.In(loc).Year(), time.January, 1, 0, 0, 0, 0, loc)
	end := time.Date(span.to.In(loc).Year()+1, time.January, 1, 0, 0, 0, 0, loc)

	tz := ical.NewTimezone(loc.String())

	name, offset := start.Zone()
	addObservance(tz, transition{at: start, from: offset, to: offset, name: name, dst: start.IsDST()},
		start.Format(localLayout))

	for _, tr := range transitions(loc, start, end) {
		// DTSTART наблюдения: местное время перехода по прежнему смещению
		onset := tr.at.UTC().Add(time.Duration(tr.from) * time.Second).Format(localLayout)
		addObservance(tz, tr, onset)
	}
	return tz
}

func addObservance(tz *ical.VTimezone, tr transition, dtstart string) {
	var c propertySetter
	if tr.dst {
		d := &ical.Daylight{}
		tz.Components = append(tz.Components, d)
		c = d
	} else {
		c = tz.AddStandard()
	}

	c.SetProperty(ical.ComponentPropertyDtStart, dtstart)
	c.SetProperty(propertyTzOffsetFrom, formatOffset(tr.from))
	c.SetProperty(propertyTzOffsetTo, formatOffset(tr.to))
	if tr.name != "" {
		c.SetProperty(propertyTzName, tr.name)
	}
}

// transitions находит смены смещения зоны на [start, end): шаг в сутки,
// затем двоичный поиск до секунды
func transitions(loc *time.Location, start, end time.Time) []transition {
	var out []transition

	prev := start
	_, prevOffset := prev.In(loc).Zone()
	for t := start.Add(24 * time.Hour); t.Before(end); t = t.Add(24 * time.Hour) {
		_, offset := t.In(loc).Zone()
		if offset != prevOffset {
			at := findTransition(loc, prev, t, prevOffset)
			name, _ := at.In(loc).Zone()
			out = append(out, transition{
				at:   at,
				from: prevOffset,
				to:   offset,
				name: name,
				dst:  at.In(loc).IsDST(),
			})
			prevOffset = offset
		}
		prev = t
	}
	return out
}

// findTransition: первый момент в (lo, hi], где смещение уже не равно before
func findTransition(loc *time.Location, lo, hi time.Time, before int) time.Time {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, offset := mid.In(loc).Zone(); offset == before {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Second)
}

// formatOffset: смещение UTC в форме RFC 5545 (+HHMM или +HHMMSS)
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}
