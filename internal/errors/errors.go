package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether err carries the same code as target, so wrapped
// AppErrors match their taxonomy sentinels under errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}

	ErrValidation       = &AppError{Code: "VALID_001", Message: "regimen invariant violated"}
	ErrDateOutOfRange   = &AppError{Code: "VALID_002", Message: "date outside regimen range"}
	ErrUnknownTimeSlot  = &AppError{Code: "VALID_003", Message: "time slot not in schedule"}
	ErrEmptyTimeSlots   = &AppError{Code: "VALID_004", Message: "regimen has no time slots"}
	ErrInvertedDates    = &AppError{Code: "VALID_005", Message: "start date after end date"}
	ErrDurationMismatch = &AppError{Code: "VALID_006", Message: "duration does not match date range"}

	ErrTransport      = &AppError{Code: "TRANSPORT_001", Message: "backend request failed"}
	ErrTimeout        = &AppError{Code: "TRANSPORT_002", Message: "backend request timed out"}
	ErrUnauthorized   = &AppError{Code: "TRANSPORT_003", Message: "unauthenticated"}
	ErrCircuitOpen    = &AppError{Code: "TRANSPORT_004", Message: "backend circuit open"}
	ErrDoseRecording  = &AppError{Code: "DOSE_001", Message: "dose recording failed"}
	ErrRegimenMissing = &AppError{Code: "DOSE_002", Message: "regimen not found"}

	ErrPermissionDenied = &AppError{Code: "PERM_001", Message: "notification permission denied"}
	ErrScheduling       = &AppError{Code: "SCHED_001", Message: "platform scheduling call failed"}
	ErrRegistration     = &AppError{Code: "REG_001", Message: "push token registration failed"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
