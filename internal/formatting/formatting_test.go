package formatting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

func TestFormatWeekdayRange(t *testing.T) {
	tests := []struct {
		name string
		days []time.Weekday
		want string
	}{
		{"empty", nil, ""},
		{"single", []time.Weekday{time.Wednesday}, "Ср"},
		{"pair", []time.Weekday{time.Monday, time.Tuesday}, "Пн, Вт"},
		{"working week", []time.Weekday{time.Friday, time.Monday, time.Wednesday, time.Tuesday, time.Thursday}, "Пн-Пт"},
		{"gaps", []time.Weekday{time.Monday, time.Wednesday, time.Friday}, "Пн, Ср, Пт"},
		{"weekend after monday", []time.Weekday{time.Sunday, time.Saturday, time.Monday}, "Пн, Сб, Вс"},
		{"duplicates", []time.Weekday{time.Monday, time.Monday}, "Пн"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatWeekdayRange(tt.days))
		})
	}
}

func TestDescribeRule(t *testing.T) {
	until := recurrence.NewDate(2024, time.December, 20)
	rule := recurrence.Rule{
		Freq:     recurrence.Weekly,
		Interval: 1,
		Weekdays: []time.Weekday{time.Wednesday, time.Monday},
		Start:    time.Date(2024, time.September, 2, 9, 0, 0, 0, time.UTC),
		Until:    &until,
	}

	assert.Equal(t, "Пн, Ср 09:00-10:30, еженедельно, с 02.09.2024 по 20.12.2024", DescribeRule(rule, 90))

	rule.Until = nil
	rule.Interval = 2
	assert.Equal(t, "Пн, Ср 09:00-10:30, каждые 2 недели, с 02.09.2024, бессрочно", DescribeRule(rule, 90))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 мин", FormatDuration(45))
	assert.Equal(t, "2 ч", FormatDuration(120))
	assert.Equal(t, "1 ч 30 мин", FormatDuration(90))
}

func TestPluralizeLessons(t *testing.T) {
	assert.Equal(t, "занятие", PluralizeLessons(1))
	assert.Equal(t, "занятия", PluralizeLessons(3))
	assert.Equal(t, "занятий", PluralizeLessons(11))
	assert.Equal(t, "занятие", PluralizeLessons(21))
}

func TestFormatTimeline(t *testing.T) {
	start := time.Date(2024, time.September, 3, 10, 0, 0, 0, time.UTC)
	occurrences := []model.ResolvedOccurrence{
		{
			SourceDate: recurrence.NewDate(2024, time.September, 2),
			Start:      start,
			End:        start.Add(time.Hour),
			Room:       "101",
			Status:     model.OccurrenceMoved,
		},
		{
			SourceDate: recurrence.NewDate(2024, time.September, 4),
			Start:      start.AddDate(0, 0, 1),
			End:        start.AddDate(0, 0, 1).Add(time.Hour),
			Status:     model.OccurrenceCancelled,
			Reason:     "праздник",
		},
	}

	out := FormatTimeline(occurrences)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "🔁 03.09.2024 (Вт) 10:00-11:00, ауд. 101 (из 02.09.2024)", lines[0])
	assert.Equal(t, "❌ 04.09.2024 (Ср) 10:00-11:00 (Отменено: праздник)", lines[1])
	assert.True(t, strings.HasSuffix(out, "Всего: 1 занятие"))

	assert.Equal(t, "Занятий нет", FormatTimeline(nil))
}
