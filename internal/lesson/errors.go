package lesson

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies engine errors for callers that map them to a transport.
type Code string

const (
	CodeNotFound    Code = "NOT_FOUND"
	CodeInvalid     Code = "INVALID_ARGUMENT"
	CodeConflict    Code = "CONFLICT"
	CodeForbidden   Code = "FORBIDDEN"
	CodeIntegrity   Code = "INTEGRITY"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeInternal    Code = "INTERNAL"
)

// Error is a coded engine error. Sentinels below are compared with errors.Is.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

var (
	ErrLessonNotFound   = &Error{Code: CodeNotFound, Message: "lesson not found"}
	ErrPageNotFound     = &Error{Code: CodeNotFound, Message: "page not found"}
	ErrAnswerNotFound   = &Error{Code: CodeNotFound, Message: "answer not found"}
	ErrAttemptNotFound  = &Error{Code: CodeNotFound, Message: "attempt not found"}
	ErrIntegrity        = &Error{Code: CodeIntegrity, Message: "lesson structure is inconsistent"}
	ErrInvalidPage      = &Error{Code: CodeInvalid, Message: "invalid page"}
	ErrInvalidMove      = &Error{Code: CodeInvalid, Message: "invalid page move"}
	ErrInvalidRetry     = &Error{Code: CodeInvalid, Message: "invalid retry"}
	ErrInvalidLesson    = &Error{Code: CodeInvalid, Message: "invalid lesson settings"}
	ErrNotAnswerable    = &Error{Code: CodeInvalid, Message: "page does not accept answers"}
	ErrTimerRunning     = &Error{Code: CodeConflict, Message: "a timer is already running"}
	ErrNoTimer          = &Error{Code: CodeConflict, Message: "no running timer"}
	ErrRetakeNotAllowed = &Error{Code: CodeForbidden, Message: "retakes are not allowed"}
	ErrWrongPassword    = &Error{Code: CodeForbidden, Message: "wrong lesson password"}
	ErrNotAvailable     = &Error{Code: CodeUnavailable, Message: "lesson is not yet available"}
	ErrDeadlinePassed   = &Error{Code: CodeUnavailable, Message: "lesson deadline has passed"}
)

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeInternal
}

func integrityf(format string, args ...any) error {
	return errors.Wrapf(ErrIntegrity, format, args...)
}

func pageNotFound(id int64) error {
	return errors.Wrapf(ErrPageNotFound, "page %d", id)
}
