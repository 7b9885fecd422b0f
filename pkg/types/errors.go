package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrEmptyQuery   = errors.New("missing query")
)
