package ordering

import (
	"errors"
	"fmt"
)

// Rejection codes reported to the client.
const (
	CodeInvalidServeDate     = "invalid_serve_date"
	CodeServeDateOutOfWindow = "serve_date_out_of_window"
	CodeCafeTimeClosed       = "cafe_time_closed"
	CodeTimeSlotExpired      = "time_slot_expired"
	CodeInvalidTimeslot      = "invalid_timeslot"
	CodeMenuNotAvailable     = "menu_not_available"
)

var (
	ErrInvalidServeDate     = errors.New(CodeInvalidServeDate)
	ErrServeDateOutOfWindow = errors.New(CodeServeDateOutOfWindow)
	ErrCafeTimeClosed       = errors.New(CodeCafeTimeClosed)
	ErrTimeSlotExpired      = errors.New(CodeTimeSlotExpired)
	ErrInvalidTimeslot      = errors.New(CodeInvalidTimeslot)
	ErrMenuNotAvailable     = errors.New(CodeMenuNotAvailable)
)

// ValidationError is a rejected order. errors.Is matches the sentinel of its code.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	sentinel error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.sentinel }

func reject(sentinel error, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:     sentinel.Error(),
		Message:  fmt.Sprintf(format, args...),
		sentinel: sentinel,
	}
}
