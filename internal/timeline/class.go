package timeline

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/model"
)

// SeriesInput: серия и её переопределения
type SeriesInput struct {
	Series    *model.EventSeries
	Overrides []*model.Override
}

// SeriesError: ошибка построения одной серии, не прерывающая запрос по классу
type SeriesError struct {
	SeriesID int64 `json:"series_id"`
	Err      error `json:"-"`
}

func (e SeriesError) Error() string {
	return fmt.Sprintf("series %d: %v", e.SeriesID, e.Err)
}

func (e SeriesError) Unwrap() error {
	return e.Err
}

// ClassTimeline: расписание класса по всем сериям плюс ошибки отдельных серий
type ClassTimeline struct {
	Occurrences Timeline
	Errors      []SeriesError
}

// BuildClass строит расписание класса; серия с повреждённым правилом попадает в Errors,
// остальные серии строятся как обычно
func BuildClass(inputs []SeriesInput, windowStart, windowEnd time.Time) ClassTimeline {
	var result ClassTimeline

	for _, in := range inputs {
		tl, err := Build(in.Series, in.Overrides, windowStart, windowEnd)
		if err != nil {
			result.Errors = append(result.Errors, SeriesError{SeriesID: in.Series.ID, Err: err})
			continue
		}
		result.Occurrences = append(result.Occurrences, tl...)
	}

	sortTimeline(result.Occurrences)
	return result
}

// NextInClass возвращает ближайшее действующее занятие класса после after
func NextInClass(inputs []SeriesInput, after time.Time, lookahead time.Duration) (model.ResolvedOccurrence, bool, []SeriesError) {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	ct := BuildClass(inputs, after, after.Add(lookahead))
	occ, ok, _ := firstAfter(ct.Occurrences, after)
	return occ, ok, ct.Errors
}
