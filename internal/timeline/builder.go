package timeline

import (
	"sort"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// DefaultLookahead: горизонт поиска ближайшего занятия
const DefaultLookahead = 365 * 24 * time.Hour

// Timeline: фактические занятия, отсортированные по началу
type Timeline []model.ResolvedOccurrence

// Active возвращает занятия без отменённых
func (t Timeline) Active() Timeline {
	out := make(Timeline, 0, len(t))
	for _, o := range t {
		if o.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// Cancelled возвращает только отменённые занятия
func (t Timeline) Cancelled() Timeline {
	var out Timeline
	for _, o := range t {
		if !o.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// Build строит фактическое расписание серии в окне [windowStart, windowEnd].
// Результат зависит только от аргументов.
func Build(series *model.EventSeries, overrides []*model.Override, windowStart, windowEnd time.Time) (Timeline, error) {
	if series.RuleErr != nil {
		return nil, series.RuleErr
	}

	base, err := recurrence.Expand(series.Rule, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	res := Resolve(overrides)
	movedFrom := make(map[recurrence.Date]struct{}, len(res.Moved))
	for _, m := range res.Moved {
		movedFrom[m.SourceDate] = struct{}{}
	}

	out := make(Timeline, 0, len(base)+len(res.Moved))
	for _, start := range base {
		d := recurrence.DateOf(start)
		if _, ok := movedFrom[d]; ok {
			continue
		}

		occ := model.ResolvedOccurrence{
			SeriesID:   series.ID,
			ClassID:    series.ClassID,
			SourceDate: d,
			Start:      start,
			End:        start.Add(series.Duration()),
			Room:       series.Room,
			Status:     model.OccurrenceScheduled,
		}
		if c, ok := res.Cancelled[d]; ok {
			id := c.ID
			occ.Status = model.OccurrenceCancelled
			occ.OverrideID = &id
			occ.Reason = c.Cancellation.Reason
		}
		out = append(out, occ)
	}

	for _, m := range res.Moved {
		if m.Start.Before(windowStart) || m.Start.After(windowEnd) {
			continue
		}
		// перенос даты, которую правило больше не покрывает (например, после разбиения), не действует
		_, ok, err := recurrence.OccursOn(series.Rule, m.SourceDate)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		room := m.Room
		if room == "" {
			room = series.Room
		}
		id := m.Override.ID
		out = append(out, model.ResolvedOccurrence{
			SeriesID:   series.ID,
			ClassID:    series.ClassID,
			SourceDate: m.SourceDate,
			Start:      m.Start,
			End:        m.End,
			Room:       room,
			Status:     model.OccurrenceMoved,
			OverrideID: &id,
		})
	}

	sortTimeline(out)
	return out, nil
}

// Next возвращает первое действующее занятие, начинающееся строго после after,
// в пределах lookahead (DefaultLookahead, если не задан)
func Next(series *model.EventSeries, overrides []*model.Override, after time.Time, lookahead time.Duration) (model.ResolvedOccurrence, bool, error) {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	tl, err := Build(series, overrides, after, after.Add(lookahead))
	if err != nil {
		return model.ResolvedOccurrence{}, false, err
	}
	return firstAfter(tl, after)
}

func firstAfter(tl Timeline, after time.Time) (model.ResolvedOccurrence, bool, error) {
	for _, o := range tl {
		if o.IsActive() && o.Start.After(after) {
			return o, true, nil
		}
	}
	return model.ResolvedOccurrence{}, false, nil
}

func sortTimeline(tl Timeline) {
	sort.SliceStable(tl, func(i, j int) bool {
		a, b := tl[i], tl[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.SeriesID != b.SeriesID {
			return a.SeriesID < b.SeriesID
		}
		return a.SourceDate.Before(b.SourceDate)
	})
}
