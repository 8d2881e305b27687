package domain

import "errors"

// Сторы и сервисы возвращают эти ошибки (обернутыми через %w),
// HTTP-слой переводит их в коды ответа.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrDuplicatePending       = errors.New("pending request already exists for entity")
	ErrConflict               = errors.New("conflict")
	ErrValidation             = errors.New("validation failed")
	ErrUnauthorized           = errors.New("unauthorized")
)
