package formatting

import (
	"fmt"

	"github.com/Freeeeeet/class_scheduler/internal/model"
)

// StatusDisplay представляет отображение статуса
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetOccurrenceStatusDisplay возвращает emoji и текст для статуса занятия
func GetOccurrenceStatusDisplay(status model.OccurrenceStatus) StatusDisplay {
	displays := map[model.OccurrenceStatus]StatusDisplay{
		model.OccurrenceScheduled: {"🟢", "По расписанию"},
		model.OccurrenceMoved:     {"🔁", "Перенесено"},
		model.OccurrenceCancelled: {"❌", "Отменено"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

// GetClassStatusDisplay возвращает emoji и текст для статуса класса
func GetClassStatusDisplay(status model.ClassStatus) StatusDisplay {
	displays := map[model.ClassStatus]StatusDisplay{
		model.ClassStatusScheduled: {"🗓", "Запланирован"},
		model.ClassStatusActive:    {"✅", "Идёт"},
		model.ClassStatusPaused:    {"⏸", "Приостановлен"},
		model.ClassStatusCompleted: {"✔️", "Завершён"},
		model.ClassStatusCancelled: {"🚫", "Отменён"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

// FormatOccurrence форматирует одно занятие в строку:
// "🔁 03.09.2024 (Вт) 10:00-11:00, ауд. 101 (из 02.09.2024)"
func FormatOccurrence(occ model.ResolvedOccurrence) string {
	display := GetOccurrenceStatusDisplay(occ.Status)
	line := fmt.Sprintf("%s %s %s",
		display.Emoji,
		FormatDateWithWeekday(dateOf(occ)),
		FormatTimeRange(occ.Start, occ.End),
	)
	if occ.Room != "" {
		line += ", ауд. " + occ.Room
	}

	switch occ.Status {
	case model.OccurrenceMoved:
		line += fmt.Sprintf(" (из %s)", FormatDate(occ.SourceDate))
	case model.OccurrenceCancelled:
		if occ.Reason != "" {
			line += fmt.Sprintf(" (%s: %s)", display.Text, occ.Reason)
		} else {
			line += fmt.Sprintf(" (%s)", display.Text)
		}
	}
	return line
}
