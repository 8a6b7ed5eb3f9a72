package repository

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
)

// OverrideRow: колонки варианта переопределения в том виде, как они лежат в таблице
type OverrideRow struct {
	Kind     string
	Reason   string
	NewStart *time.Time
	NewEnd   *time.Time
	Room     string
}

// RowOf раскладывает вариант переопределения по колонкам
func RowOf(o *model.Override) OverrideRow {
	if o.Move != nil {
		start, end := o.Move.NewStart.UTC(), o.Move.NewEnd.UTC()
		return OverrideRow{
			Kind:     string(model.OverrideMoved),
			NewStart: &start,
			NewEnd:   &end,
			Room:     o.Move.Room,
		}
	}
	row := OverrideRow{Kind: string(model.OverrideCancelled)}
	if o.Cancellation != nil {
		row.Reason = o.Cancellation.Reason
	}
	return row
}

// Apply восстанавливает вариант переопределения из колонок
func (r OverrideRow) Apply(o *model.Override) error {
	switch model.OverrideKind(r.Kind) {
	case model.OverrideCancelled:
		o.Cancellation = &model.Cancellation{Reason: r.Reason}
		o.Move = nil
	case model.OverrideMoved:
		if r.NewStart == nil || r.NewEnd == nil {
			return fmt.Errorf("override %d: moved without new time", o.ID)
		}
		o.Move = &model.Move{NewStart: *r.NewStart, NewEnd: *r.NewEnd, Room: r.Room}
		o.Cancellation = nil
	default:
		return fmt.Errorf("override %d: unknown kind %q", o.ID, r.Kind)
	}
	return nil
}
