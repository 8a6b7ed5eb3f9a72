package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
)

// Expand возвращает моменты начала занятий правила r в окне [windowStart, windowEnd]
// (границы включительно) по возрастанию. Функция чистая: без I/O и глобального состояния.
// Моменты выражены в зоне правила, время суток сохраняется при переходе на летнее время.
func Expand(r Rule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if r.Start.IsZero() || windowEnd.Before(windowStart) {
		return nil, nil
	}
	if r.EndsBefore(r.StartDate()) {
		return nil, nil
	}

	rr, err := rrule.NewRRule(toOption(r))
	if err != nil {
		return nil, apperrors.NewMalformedRule(err, "build recurrence rule")
	}

	occurrences := rr.Between(windowStart, windowEnd, true)

	out := make([]time.Time, 0, len(occurrences))
	for _, t := range occurrences {
		if t.Before(windowStart) || t.After(windowEnd) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// OccursOn возвращает базовый момент занятия на дату d (в зоне правила), если он есть
func OccursOn(r Rule, d Date) (time.Time, bool, error) {
	loc := r.Location()
	occurrences, err := Expand(r, d.StartIn(loc), d.EndIn(loc))
	if err != nil {
		return time.Time{}, false, err
	}
	if len(occurrences) == 0 {
		return time.Time{}, false, nil
	}
	return occurrences[0], true, nil
}

// First возвращает первое занятие правила. DTSTART, не попадающий в дни недели
// правила (например, дата разбиения серии), занятием не считается.
func First(r Rule) (time.Time, bool, error) {
	if r.Start.IsZero() || r.EndsBefore(r.StartDate()) {
		return time.Time{}, false, nil
	}

	rr, err := rrule.NewRRule(toOption(r))
	if err != nil {
		return time.Time{}, false, apperrors.NewMalformedRule(err, "build recurrence rule")
	}

	first := rr.After(r.Start.Truncate(time.Second), true)
	if first.IsZero() {
		return time.Time{}, false, nil
	}
	return first, true, nil
}
