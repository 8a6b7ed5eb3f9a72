package repository

import "errors"

var (
	// ErrNoRows: изменяемая строка не найдена
	ErrNoRows = errors.New("no rows affected")
	// ErrDuplicate: нарушен уникальный ключ
	ErrDuplicate = errors.New("duplicate row")
)
