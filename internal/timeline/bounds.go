package timeline

import (
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// BoundsHorizonYears ограничивает бессрочные правила при поиске последнего занятия
const BoundsHorizonYears = 5

// Bounds возвращает даты (в зоне loc) первого и последнего действующего занятия класса.
// Серии с повреждённым правилом пропускаются. ok=false, если занятий нет.
func Bounds(inputs []SeriesInput, loc *time.Location) (first, last recurrence.Date, ok bool) {
	var windowStart, windowEnd time.Time

	for _, in := range inputs {
		s := in.Series
		if s.RuleErr != nil || s.Rule.Start.IsZero() {
			continue
		}
		start := s.Rule.Start
		end := start.AddDate(BoundsHorizonYears, 0, 0)
		if s.Rule.Until != nil {
			end = s.Rule.Until.EndIn(s.Rule.Location())
		}
		for _, o := range in.Overrides {
			if o.Move == nil {
				continue
			}
			if o.Move.NewStart.Before(start) {
				start = o.Move.NewStart
			}
			if o.Move.NewStart.After(end) {
				end = o.Move.NewStart
			}
		}

		if windowStart.IsZero() || start.Before(windowStart) {
			windowStart = start
		}
		if end.After(windowEnd) {
			windowEnd = end
		}
	}
	if windowStart.IsZero() {
		return recurrence.Date{}, recurrence.Date{}, false
	}

	active := BuildClass(inputs, windowStart, windowEnd).Occurrences.Active()
	if len(active) == 0 {
		return recurrence.Date{}, recurrence.Date{}, false
	}

	return recurrence.DateOf(active[0].Start.In(loc)), recurrence.DateOf(active[len(active)-1].Start.In(loc)), true
}
