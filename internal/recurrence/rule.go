package recurrence

import (
	"slices"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
)

// Frequency: частота повторения правила
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// Rule: структурированное правило повторения.
// Текстовая форма (RFC 5545) появляется только на границе хранилища: Parse/Format.
type Rule struct {
	Freq     Frequency
	Interval int
	// Weekdays: дни недели для WEEKLY (для DAILY работает как фильтр)
	Weekdays []time.Weekday
	// Start: DTSTART, несёт зону правила
	Start time.Time
	// Until: последняя покрываемая дата включительно (в зоне правила), nil = бессрочно
	Until *Date
}

// Location возвращает зону правила
func (r Rule) Location() *time.Location {
	return r.Start.Location()
}

// StartDate: дата DTSTART в зоне правила
func (r Rule) StartDate() Date {
	return DateOf(r.Start)
}

// EndsBefore сообщает, закончилось ли правило раньше даты d
func (r Rule) EndsBefore(d Date) bool {
	return r.Until != nil && r.Until.Before(d)
}

// WithUntil возвращает копию правила с новой датой окончания
func (r Rule) WithUntil(until *Date) Rule {
	out := r.clone()
	if until == nil {
		out.Until = nil
		return out
	}
	u := *until
	out.Until = &u
	return out
}

// WithStartDate переносит DTSTART на дату d, сохраняя время суток и зону
func (r Rule) WithStartDate(d Date) Rule {
	out := r.clone()
	out.Start = d.At(r.Start, r.Location())
	return out
}

// Equal сравнивает правила по смыслу (момент старта, а не указатель зоны)
func (r Rule) Equal(other Rule) bool {
	if r.Freq != other.Freq || r.normalizedInterval() != other.normalizedInterval() {
		return false
	}
	if !r.Start.Equal(other.Start) || r.Location().String() != other.Location().String() {
		return false
	}
	if !slices.Equal(sortedWeekdays(r.Weekdays), sortedWeekdays(other.Weekdays)) {
		return false
	}
	switch {
	case r.Until == nil && other.Until == nil:
		return true
	case r.Until == nil || other.Until == nil:
		return false
	}
	return *r.Until == *other.Until
}

// Validate проверяет правило перед сохранением
func (r Rule) Validate() error {
	switch r.Freq {
	case Daily, Weekly, Monthly:
	default:
		return apperrors.NewInvalidRule("unsupported frequency %q", r.Freq)
	}
	if r.Interval < 1 {
		return apperrors.NewInvalidRule("interval must be >= 1, got %d", r.Interval)
	}
	if r.Start.IsZero() {
		return apperrors.NewInvalidRule("rule has no start")
	}
	if r.Freq == Weekly && len(r.Weekdays) == 0 {
		return apperrors.NewInvalidRule("weekly rule requires at least one weekday")
	}
	if r.Freq == Monthly && len(r.Weekdays) > 0 {
		return apperrors.NewInvalidRule("weekdays are not supported for monthly rules")
	}
	for _, wd := range r.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return apperrors.NewInvalidRule("invalid weekday %d", wd)
		}
	}
	return nil
}

func (r Rule) normalizedInterval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r Rule) clone() Rule {
	out := r
	out.Weekdays = slices.Clone(r.Weekdays)
	if r.Until != nil {
		u := *r.Until
		out.Until = &u
	}
	return out
}

func sortedWeekdays(in []time.Weekday) []time.Weekday {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
