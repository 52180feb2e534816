package repository

import "errors"

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrUserExists возвращается при попытке создать пользователя с занятым логином.
	ErrUserExists = errors.New("user already exists")
	// ErrDocumentExists возвращается, если документ уже зарегистрирован.
	ErrDocumentExists = errors.New("document already registered")
	// ErrVersionConflict возвращается, если запись изменилась после чтения.
	ErrVersionConflict = errors.New("version conflict")
	// ErrIntentClosed возвращается при изменении предложений по закрытому интересу.
	ErrIntentClosed = errors.New("intent is not open")
)
