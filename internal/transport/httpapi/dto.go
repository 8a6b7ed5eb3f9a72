package httpapi

import (
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

// APIResponse общий конверт ответа, в нём либо data, либо error
type APIResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

type CreateClassRequest struct {
	Name     string `json:"name" binding:"required"`
	Timezone string `json:"timezone"`
}

type CloseClassRequest struct {
	Status model.ClassStatus `json:"status" binding:"required"`
}

type CreateSeriesRequest struct {
	Rule            string `json:"rule" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,gt=0"`
	Room            string `json:"room"`
}

type CancelRequest struct {
	SourceDate recurrence.Date `json:"source_date"`
	Reason     string          `json:"reason"`
}

type RescheduleRequest struct {
	SourceDate recurrence.Date `json:"source_date"`
	NewStart   time.Time       `json:"new_start"`
	NewEnd     time.Time       `json:"new_end"`
	Room       string          `json:"room"`
}

type SplitRequest struct {
	Rule             string          `json:"rule" binding:"required"`
	DurationMinutes  int             `json:"duration_minutes" binding:"gte=0"`
	CutoverDate      recurrence.Date `json:"cutover_date"`
	Room             string          `json:"room"`
	AllowPastCutover bool            `json:"allow_past_cutover"`
}

// SeriesResponse: серия с человекочитаемым описанием правила
type SeriesResponse struct {
	*model.EventSeries
	Summary string `json:"summary"`
}

type SeriesErrorResponse struct {
	SeriesID int64          `json:"series_id"`
	Kind     apperrors.Kind `json:"kind"`
	Message  string         `json:"message"`
}

type TimelineResponse struct {
	From        recurrence.Date            `json:"from"`
	To          recurrence.Date            `json:"to"`
	Occurrences []model.ResolvedOccurrence `json:"occurrences"`
	Errors      []SeriesErrorResponse      `json:"errors,omitempty"`
}

type NextResponse struct {
	Occurrence *model.ResolvedOccurrence `json:"occurrence"`
	Errors     []SeriesErrorResponse     `json:"errors,omitempty"`
}

func seriesErrors(errs []timeline.SeriesError) []SeriesErrorResponse {
	if len(errs) == 0 {
		return nil
	}
	out := make([]SeriesErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, SeriesErrorResponse{
			SeriesID: e.SeriesID,
			Kind:     apperrors.KindOf(e.Err),
			Message:  e.Err.Error(),
		})
	}
	return out
}

func occurrences(tl timeline.Timeline) []model.ResolvedOccurrence {
	if tl == nil {
		return []model.ResolvedOccurrence{}
	}
	return tl
}
