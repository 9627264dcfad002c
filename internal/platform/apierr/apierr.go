// Package apierr pairs an error with the HTTP status and stable machine
// code the handlers should respond with, so services decide the mapping
// and handlers never inspect error strings.
package apierr

import "fmt"

// Error carries the response mapping alongside the underlying cause.
// Status is the HTTP status code and Code a short stable identifier such
// as "entry_not_found" that clients can branch on.
type Error struct {
	Status int
	Code   string
	Err    error
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	case e.Status != 0:
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }
