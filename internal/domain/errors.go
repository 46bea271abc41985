package domain

import "errors"

var (
	ErrTemplateNotFound   = errors.New("prompt template not found")
	ErrBackendUnavailable = errors.New("model backend unavailable")
	ErrBackendTimeout     = errors.New("model backend timed out")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMalformedOutput    = errors.New("model output is not decodable JSON")
	ErrSchemaViolation    = errors.New("model output violates the transaction schema")
	ErrAmbiguousType      = errors.New("transaction type cannot be resolved")
	ErrRecordNotFound     = errors.New("transaction record not found")
	ErrImageTooLarge      = errors.New("receipt image exceeds maximum allowed size")
)
