package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrSchemaNotFound       = errors.New("schema not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNoJoinPath           = errors.New("no join path between tables")
	ErrSchemaObjectNotFound = errors.New("schema object not found")
	ErrExecution            = errors.New("execution failed")
	ErrLLMUnavailable       = errors.New("llm unavailable")
	ErrBusy                 = errors.New("worker queue is full")
)
