package domain

import "errors"

// ErrNotObject indicates that a JSON value expected to be an object was not.
var ErrNotObject = errors.New("json value is not an object")

// ErrMissingIndex indicates that a question record has no index field.
// The index is the resume join key, so a record without one cannot be tracked.
var ErrMissingIndex = errors.New("question record missing index")

// ErrMissingQuestion indicates that a question record has no question text.
var ErrMissingQuestion = errors.New("question record missing question text")

// ErrInvalidRecord indicates that a domain value failed struct validation.
var ErrInvalidRecord = errors.New("invalid record")

// ErrInvalidTimestamp indicates that a persisted timestamp could not be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")
