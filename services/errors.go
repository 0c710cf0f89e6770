package services

import "fmt"

// ValidationError - некорректный или неполный запрос, отдаем 400
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError - сущность не найдена, отдаем 404
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

func NewNotFoundError(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: id}
}
