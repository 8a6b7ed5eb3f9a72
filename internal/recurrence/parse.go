package recurrence

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
)

// localZoneMarker: заглушка зоны, которую старые формы писали вместо реального TZID
const localZoneMarker = "TZID=Local:"

var (
	toRRuleFreq = map[Frequency]rrule.Frequency{
		Daily:   rrule.DAILY,
		Weekly:  rrule.WEEKLY,
		Monthly: rrule.MONTHLY,
	}
	// rrule нумерует дни с понедельника
	rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
)

// Parse разбирает текст правила (DTSTART + RRULE).
// Заглушка TZID=Local заменяется на зону zone (обычно зона класса) до разбора.
func Parse(text string, zone *time.Location) (Rule, error) {
	if zone == nil {
		zone = time.UTC
	}
	normalized := NormalizeZone(text, zone)

	opt, err := rrule.StrToROptionInLocation(normalized, zone)
	if err != nil {
		return Rule{}, apperrors.NewMalformedRule(err, "parse recurrence rule %q", text)
	}

	rule, err := fromOption(*opt)
	if err != nil {
		return Rule{}, apperrors.NewMalformedRule(err, "parse recurrence rule %q", text)
	}
	return rule, nil
}

// NormalizeZone приводит переводы строк и заменяет заглушку зоны на конкретный идентификатор
func NormalizeZone(text string, zone *time.Location) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if zone == nil || !strings.Contains(text, localZoneMarker) {
		return text
	}
	return strings.Replace(text, localZoneMarker, "TZID="+zone.String()+":", 1)
}

// Format возвращает каноническую текстовую форму правила
func Format(r Rule) string {
	opt := toOption(r)
	return opt.String()
}

// FormatRRule возвращает только значение RRULE, без строки DTSTART (для VEVENT)
func FormatRRule(r Rule) string {
	opt := toOption(r)
	return opt.RRuleString()
}

func fromOption(opt rrule.ROption) (Rule, error) {
	if opt.Dtstart.IsZero() {
		return Rule{}, errors.New("DTSTART is required")
	}

	var freq Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = Daily
	case rrule.WEEKLY:
		freq = Weekly
	case rrule.MONTHLY:
		freq = Monthly
	default:
		return Rule{}, errors.New("unsupported FREQ " + opt.Freq.String())
	}

	switch {
	case opt.Count != 0:
		return Rule{}, errors.New("COUNT is not supported")
	case opt.Wkst != rrule.MO:
		return Rule{}, errors.New("WKST is not supported")
	case len(opt.Bysetpos) > 0, len(opt.Bymonth) > 0, len(opt.Bymonthday) > 0,
		len(opt.Byyearday) > 0, len(opt.Byweekno) > 0, len(opt.Byhour) > 0,
		len(opt.Byminute) > 0, len(opt.Bysecond) > 0, len(opt.Byeaster) > 0:
		return Rule{}, errors.New("only FREQ, INTERVAL, BYDAY and UNTIL are supported")
	}

	rule := Rule{
		Freq:     freq,
		Interval: opt.Interval,
		Start:    opt.Dtstart,
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}

	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return Rule{}, errors.New("ordinal BYDAY values are not supported")
		}
		rule.Weekdays = append(rule.Weekdays, time.Weekday((wd.Day()+1)%7))
	}
	rule.Weekdays = orderWeekdays(rule.Weekdays)

	if !opt.Until.IsZero() {
		until := DateOf(opt.Until.In(rule.Location()))
		rule.Until = &until
	}

	return rule, nil
}

func toOption(r Rule) rrule.ROption {
	opt := rrule.ROption{
		Freq:     toRRuleFreq[r.Freq],
		Dtstart:  r.Start.Truncate(time.Second),
		Interval: r.normalizedInterval(),
	}
	for _, wd := range orderWeekdays(r.Weekdays) {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[(int(wd)+6)%7])
	}
	if r.Until != nil {
		opt.Until = r.Until.EndIn(r.Location()).UTC()
	}
	return opt
}

// orderWeekdays сортирует дни в порядке RFC 5545 (с понедельника) и убирает дубли
func orderWeekdays(in []time.Weekday) []time.Weekday {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b time.Weekday) int {
		return (int(a)+6)%7 - (int(b)+6)%7
	})
	return slices.Compact(out)
}
