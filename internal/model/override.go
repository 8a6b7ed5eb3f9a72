package model

import (
	"errors"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

type OverrideKind string

const (
	OverrideCancelled OverrideKind = "cancelled"
	OverrideMoved     OverrideKind = "moved"
)

// Cancellation: занятие на исходную дату не проводится
type Cancellation struct {
	Reason string `json:"reason"`
}

// Move: занятие исходной даты перенесено на другое время
type Move struct {
	NewStart time.Time `json:"new_start"`
	NewEnd   time.Time `json:"new_end"`
	Room     string    `json:"room"`
}

// Override: изменение одного занятия серии. Ровно одно из Cancellation/Move заполнено.
type Override struct {
	ID       int64 `json:"id"`
	SeriesID int64 `json:"series_id"`
	// SourceDate: дата исходного занятия по правилу (в зоне серии)
	SourceDate   recurrence.Date `json:"source_date"`
	Cancellation *Cancellation   `json:"cancellation,omitempty"`
	Move         *Move           `json:"move,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewCancellation(seriesID int64, sourceDate recurrence.Date, reason string) *Override {
	return &Override{
		SeriesID:     seriesID,
		SourceDate:   sourceDate,
		Cancellation: &Cancellation{Reason: reason},
	}
}

func NewMove(seriesID int64, sourceDate recurrence.Date, start, end time.Time, room string) *Override {
	return &Override{
		SeriesID:   seriesID,
		SourceDate: sourceDate,
		Move:       &Move{NewStart: start, NewEnd: end, Room: room},
	}
}

// Kind возвращает вариант переопределения
func (o *Override) Kind() OverrideKind {
	if o.Move != nil {
		return OverrideMoved
	}
	return OverrideCancelled
}

// Validate проверяет, что заполнен ровно один вариант
func (o *Override) Validate() error {
	switch {
	case o.Cancellation == nil && o.Move == nil:
		return errors.New("override has no variant")
	case o.Cancellation != nil && o.Move != nil:
		return errors.New("override has both cancellation and move")
	case o.Move != nil && !o.Move.NewEnd.After(o.Move.NewStart):
		return errors.New("moved occurrence must end after it starts")
	}
	return nil
}
