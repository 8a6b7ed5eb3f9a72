package timeline

import (
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

// MovedOccurrence: занятие, перенесённое с исходной даты
type MovedOccurrence struct {
	SourceDate recurrence.Date
	Start      time.Time
	End        time.Time
	Room       string
	Override   *model.Override
}

// Resolution: переопределения серии, разложенные по вариантам
type Resolution struct {
	Cancelled map[recurrence.Date]*model.Override
	Moved     []MovedOccurrence
}

// Resolve раскладывает переопределения серии на отменённые даты и переносы.
// Исходная дата берётся из сохранённого поля, а не из нового времени занятия.
func Resolve(overrides []*model.Override) Resolution {
	res := Resolution{Cancelled: make(map[recurrence.Date]*model.Override)}

	for _, o := range overrides {
		if o == nil {
			continue
		}
		switch {
		case o.Move != nil:
			res.Moved = append(res.Moved, MovedOccurrence{
				SourceDate: o.SourceDate,
				Start:      o.Move.NewStart,
				End:        o.Move.NewEnd,
				Room:       o.Move.Room,
				Override:   o,
			})
		case o.Cancellation != nil:
			res.Cancelled[o.SourceDate] = o
		}
	}

	return res
}

// IsOverridden сообщает, занята ли исходная дата каким-либо переопределением
func (r Resolution) IsOverridden(d recurrence.Date) bool {
	if _, ok := r.Cancelled[d]; ok {
		return true
	}
	for _, m := range r.Moved {
		if m.SourceDate == d {
			return true
		}
	}
	return false
}
