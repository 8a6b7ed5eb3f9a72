package apperrors

import (
	"errors"
	"fmt"
)

// Kind: машинно-читаемый вид ошибки, который получает внешний слой (HTTP, CLI)
type Kind string

const (
	KindMalformedRule Kind = "malformed_rule"
	KindInvalidRule   Kind = "invalid_rule"
	KindConflict      Kind = "conflict"
	KindPastCutover   Kind = "past_cutover"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindInternal      Kind = "internal"
)

var (
	// Ошибки правил повторения
	ErrMalformedRule = errors.New("malformed recurrence rule")
	ErrInvalidRule   = errors.New("invalid recurrence rule")

	// Ошибки изменения расписания
	ErrConflict    = errors.New("conflict")
	ErrPastCutover = errors.New("cutover date is in the past")
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
)

var sentinels = map[Kind]error{
	KindMalformedRule: ErrMalformedRule,
	KindInvalidRule:   ErrInvalidRule,
	KindConflict:      ErrConflict,
	KindPastCutover:   ErrPastCutover,
	KindNotFound:      ErrNotFound,
	KindValidation:    ErrValidation,
}

// Error: ошибка приложения с видом и (необязательной) исходной причиной
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if s, ok := sentinels[e.Kind]; ok {
			msg = s.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap позволяет errors.Is находить как sentinel вида, так и причину
func (e *Error) Unwrap() []error {
	var errs []error
	if s, ok := sentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewMalformedRule: текст правила не удалось разобрать
func NewMalformedRule(cause error, format string, args ...any) error {
	return newError(KindMalformedRule, cause, format, args...)
}

// NewInvalidRule: правило разобрано, но семантически некорректно
func NewInvalidRule(format string, args ...any) error {
	return newError(KindInvalidRule, nil, format, args...)
}

func NewConflict(format string, args ...any) error {
	return newError(KindConflict, nil, format, args...)
}

func NewPastCutover(format string, args ...any) error {
	return newError(KindPastCutover, nil, format, args...)
}

func NewNotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

func NewValidation(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

// KindOf возвращает вид ошибки с учётом обёрток, KindInternal для прочих ошибок
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Is проверяет совпадение ошибки хотя бы с одной из целей
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
