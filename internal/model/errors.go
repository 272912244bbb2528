package model

import "errors"

// Domain error values. Handlers and callers distinguish outcomes with
// errors.Is; Code maps each to a stable identifier so no caller has to
// parse error text.
var (
	// Not-found errors
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEditRequestNotFound  = errors.New("edit request not found")
	ErrAttendanceNotFound   = errors.New("attendance record not found")

	// State-conflict errors: expected outcomes of legitimate concurrent
	// use, never logged as failures.
	ErrEventNotApproved  = errors.New("event is not open for registration")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrEventFull         = errors.New("event is fully booked")
	ErrEventLocked       = errors.New("approved event can only change through an edit request")
	ErrTokenInvalid      = errors.New("check-in token invalid or revoked")
	ErrTokenExpired      = errors.New("check-in token expired")
	ErrTokenAlreadyUsed  = errors.New("check-in token already used")

	// Token issuance errors
	ErrEventEndTimeUndefined = errors.New("event end time is not configured")
	ErrEventAlreadyEnded     = errors.New("event already ended")

	// Authorization errors
	ErrForbidden = errors.New("not your event")

	// Concurrency-retry errors: transient, retried internally before
	// being surfaced.
	ErrConcurrentModification = errors.New("concurrent modification, retry the operation")

	// Validation
	ErrInvalidInput = errors.New("invalid input")
)

var errorCodes = map[error]string{
	ErrEventNotFound:          "EVENT_NOT_FOUND",
	ErrRegistrationNotFound:   "REGISTRATION_NOT_FOUND",
	ErrEditRequestNotFound:    "EDIT_REQUEST_NOT_FOUND",
	ErrAttendanceNotFound:     "ATTENDANCE_NOT_FOUND",
	ErrEventNotApproved:       "EVENT_NOT_APPROVED",
	ErrAlreadyRegistered:      "ALREADY_REGISTERED",
	ErrEventFull:              "EVENT_FULL",
	ErrEventLocked:            "EVENT_LOCKED",
	ErrTokenInvalid:           "TOKEN_INVALID",
	ErrTokenExpired:           "TOKEN_EXPIRED",
	ErrTokenAlreadyUsed:       "TOKEN_ALREADY_USED",
	ErrEventEndTimeUndefined:  "EVENT_END_TIME_UNDEFINED",
	ErrEventAlreadyEnded:      "EVENT_ALREADY_ENDED",
	ErrForbidden:              "FORBIDDEN",
	ErrConcurrentModification: "CONCURRENT_MODIFICATION",
	ErrInvalidInput:           "INVALID_INPUT",
}

// Code returns the stable identifier for a domain error, or "INTERNAL"
// for anything outside the taxonomy.
func Code(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}
