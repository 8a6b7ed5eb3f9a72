package model

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "scheduled"
	ClassStatusActive    ClassStatus = "active"
	ClassStatusPaused    ClassStatus = "paused"
	ClassStatusCompleted ClassStatus = "completed"
	ClassStatusCancelled ClassStatus = "cancelled"
)

// Valid проверяет, что статус известен
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassStatusScheduled, ClassStatusActive, ClassStatusPaused, ClassStatusCompleted, ClassStatusCancelled:
		return true
	}
	return false
}

// IsClosed: завершённый или отменённый класс больше не меняется
func (s ClassStatus) IsClosed() bool {
	return s == ClassStatusCompleted || s == ClassStatusCancelled
}

// Class представляет учебный класс (курс), которому принадлежат серии занятий
type Class struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Timezone string      `json:"timezone"` // IANA-зона площадки
	Status   ClassStatus `json:"status"`
	// StartDate/EndDate синхронизируются с фактическим расписанием
	StartDate *recurrence.Date `json:"start_dt"`
	EndDate   *recurrence.Date `json:"end_dt"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Location возвращает зону класса (UTC, если зона не задана)
func (c *Class) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone of class %d: %w", c.ID, err)
	}
	return loc, nil
}
