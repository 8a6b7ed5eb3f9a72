package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// EventSeries представляет серию занятий класса, заданную правилом повторения
type EventSeries struct {
	ID      int64 `json:"id"`
	ClassID int64 `json:"class_id"`
	// LineageID общий для всех серий, полученных друг из друга разбиением
	LineageID uuid.UUID       `json:"lineage_id"`
	Rule      recurrence.Rule `json:"-"`
	// RawRule: текст правила, как он лежит в хранилище
	RawRule string `json:"rule"`
	// RuleErr заполняется, если сохранённое правило не удалось разобрать
	RuleErr         error     `json:"-"`
	DurationMinutes int       `json:"duration_minutes"`
	Room            string    `json:"room"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *EventSeries) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// IsOpenOn сообщает, покрывает ли правило серии дату d (серия ещё не закрыта)
func (s *EventSeries) IsOpenOn(d recurrence.Date) bool {
	return s.RuleErr == nil && !s.Rule.EndsBefore(d)
}
