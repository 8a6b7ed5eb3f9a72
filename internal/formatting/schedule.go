package formatting

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// FormatClassInfo форматирует информацию о классе
func FormatClassInfo(class *model.Class) string {
	display := GetClassStatusDisplay(class.Status)
	period := "нет занятий"
	if class.StartDate != nil && class.EndDate != nil {
		period = fmt.Sprintf("%s - %s", FormatDate(*class.StartDate), FormatDate(*class.EndDate))
	}
	return fmt.Sprintf(
		"%s %s (#%d)\n"+
			"🌍 Зона: %s\n"+
			"📅 Период: %s\n"+
			"📊 Статус: %s",
		display.Emoji,
		class.Name,
		class.ID,
		class.Timezone,
		period,
		display.Text,
	)
}

// FormatSeriesInfo форматирует серию занятий
func FormatSeriesInfo(series *model.EventSeries) string {
	if series.RuleErr != nil {
		return fmt.Sprintf("#%d ⚠️ повреждённое правило: %s", series.ID, series.RawRule)
	}
	line := fmt.Sprintf("#%d %s", series.ID, DescribeRule(series.Rule, series.DurationMinutes))
	if series.Room != "" {
		line += ", ауд. " + series.Room
	}
	return line
}

// FormatTimeline форматирует список занятий, по одному на строку
func FormatTimeline(occurrences []model.ResolvedOccurrence) string {
	if len(occurrences) == 0 {
		return "Занятий нет"
	}

	active := 0
	var sb strings.Builder
	for _, occ := range occurrences {
		if occ.IsActive() {
			active++
		}
		sb.WriteString(FormatOccurrence(occ))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nВсего: %d %s", active, PluralizeLessons(active)))
	return sb.String()
}

func dateOf(occ model.ResolvedOccurrence) recurrence.Date {
	return recurrence.DateOf(occ.Start)
}
