package model

import "time"

// ChangeField: что именно изменилось
type ChangeField string

const (
	ChangeSeriesCreated     ChangeField = "series_created"
	ChangeEventCancelled    ChangeField = "event_cancelled"
	ChangeEventRescheduled  ChangeField = "event_rescheduled"
	ChangeEventRestored     ChangeField = "event_restored"
	ChangeSeriesRescheduled ChangeField = "event_rescheduled_series"
	ChangeClassClosed       ChangeField = "class_closed"
)

// ChangeLogEntry: запись журнала изменений расписания класса
type ChangeLogEntry struct {
	ID        int64       `json:"id"`
	ClassID   int64       `json:"class_id"`
	SeriesID  *int64      `json:"series_id,omitempty"`
	FieldName ChangeField `json:"field_name"`
	OldValue  *string     `json:"old_value,omitempty"`
	NewValue  *string     `json:"new_value,omitempty"`
	ActorID   *int64      `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
