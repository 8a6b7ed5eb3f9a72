package model

import (
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

type OccurrenceStatus string

const (
	OccurrenceScheduled OccurrenceStatus = "scheduled"
	OccurrenceCancelled OccurrenceStatus = "cancelled"
	OccurrenceMoved     OccurrenceStatus = "moved"
)

// ResolvedOccurrence: одно фактическое занятие после применения переопределений.
// Вычисляется при чтении и никогда не сохраняется.
type ResolvedOccurrence struct {
	SeriesID   int64            `json:"series_id"`
	ClassID    int64            `json:"class_id"`
	SourceDate recurrence.Date  `json:"source_date"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Room       string           `json:"room"`
	Status     OccurrenceStatus `json:"status"`
	OverrideID *int64           `json:"override_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func (o ResolvedOccurrence) IsActive() bool {
	return o.Status != OccurrenceCancelled
}
