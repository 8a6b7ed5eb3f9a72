package formatting

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// DescribeRule описывает правило повторения по-русски.
// Например: "Пн, Ср 09:00-10:30, еженедельно, с 02.09.2024 по 20.12.2024"
func DescribeRule(rule recurrence.Rule, durationMinutes int) string {
	start := rule.Start
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	var parts []string
	days := FormatWeekdayRange(rule.Weekdays)
	if days != "" {
		parts = append(parts, fmt.Sprintf("%s %s", days, FormatTimeRange(start, end)))
	} else {
		parts = append(parts, FormatTimeRange(start, end))
	}
	parts = append(parts, describeFrequency(rule.Freq, rule.Interval))

	period := "с " + FormatDate(rule.StartDate())
	if rule.Until != nil {
		period += " по " + FormatDate(*rule.Until)
	} else {
		period += ", бессрочно"
	}
	parts = append(parts, period)

	return strings.Join(parts, ", ")
}

func describeFrequency(freq recurrence.Frequency, interval int) string {
	if interval <= 1 {
		switch freq {
		case recurrence.Daily:
			return "ежедневно"
		case recurrence.Weekly:
			return "еженедельно"
		case recurrence.Monthly:
			return "ежемесячно"
		}
		return strings.ToLower(string(freq))
	}

	switch freq {
	case recurrence.Daily:
		return fmt.Sprintf("каждые %d %s", interval, PluralizeDays(interval))
	case recurrence.Weekly:
		return fmt.Sprintf("каждые %d %s", interval, PluralizeWeeks(interval))
	case recurrence.Monthly:
		return fmt.Sprintf("каждые %d %s", interval, PluralizeMonths(interval))
	}
	return fmt.Sprintf("%s/%d", strings.ToLower(string(freq)), interval)
}

// FormatWeekdayRange форматирует дни недели, сворачивая подряд идущие в диапазон.
// Неделя начинается с понедельника: "Пн-Пт", "Пн, Ср, Пт", "Сб-Вс".
func FormatWeekdayRange(weekdays []time.Weekday) string {
	if len(weekdays) == 0 {
		return ""
	}

	// Понедельник = 0, воскресенье = 6
	idx := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		i := (int(wd) + 6) % 7
		if !slices.Contains(idx, i) {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)

	name := func(i int) string { return GetWeekdayShortName(time.Weekday((i + 1) % 7)) }

	var out []string
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && idx[j+1] == idx[j]+1 {
			j++
		}
		switch {
		case j-i >= 2:
			out = append(out, name(idx[i])+"-"+name(idx[j]))
		case j == i+1:
			out = append(out, name(idx[i]), name(idx[j]))
		default:
			out = append(out, name(idx[i]))
		}
		i = j + 1
	}
	return strings.Join(out, ", ")
}
