package vault

import (
	"errors"
	"net/http"

	"github.com/mbd888/sessionvault/internal/token"
	"github.com/mbd888/sessionvault/internal/txn"
)

// ErrorCode maps an error to the stable code used in API responses and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidAddress):
		return "invalid_request"
	case errors.Is(err, ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, token.ErrInvalidAccount), errors.Is(err, token.ErrSelfTransfer), errors.Is(err, token.ErrInvalidAmount):
		return "transfer_rejected"
	case txn.Retryable(err):
		return "contention"
	}
	return "internal_error"
}

// HTTPStatus is the response status for an ErrorCode.
func HTTPStatus(code string) int {
	switch code {
	case "not_initialized", "already_initialized", "invalid_state":
		return http.StatusConflict
	case "not_authorized":
		return http.StatusForbidden
	case "invalid_request", "invalid_rate", "invalid_duration", "overflow", "transfer_rejected":
		return http.StatusBadRequest
	case "booking_not_found":
		return http.StatusNotFound
	case "too_early":
		return http.StatusTooEarly
	case "insufficient_balance":
		return http.StatusPaymentRequired
	case "contention":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
