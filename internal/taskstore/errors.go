package taskstore

import (
	"errors"
	"fmt"
)

// Code classifies a Task Store failure
type Code string

const (
	CodeFetch    Code = "FETCH_ERROR"
	CodeCreate   Code = "CREATE_ERROR"
	CodeUpdate   Code = "UPDATE_ERROR"
	CodeDelete   Code = "DELETE_ERROR"
	CodeConflict Code = "CONFLICT"
)

// errNoData is wrapped when the backend reports success without a row.
var errNoData = errors.New("no data returned")

// Error is a classified Task Store failure carrying the backend message
type Error struct {
	Code    Code
	Message string
	Err     error
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a Task Store error with the given code.
func IsCode(err error, code Code) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
