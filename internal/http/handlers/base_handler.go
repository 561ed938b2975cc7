// README: Base handler utilities (JSON helpers, domain error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/ledger"
	"fooddash/internal/modules/location"
	"fooddash/internal/modules/order"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// statusFor maps a domain error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, driver.ErrNotFound), errors.Is(err, ledger.ErrDriverNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, order.ErrAlreadyTaken):
		return http.StatusConflict, "already-taken"
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict, "invalid-transition"
	case errors.Is(err, order.ErrAlreadyRated), errors.Is(err, order.ErrNotRateable), errors.Is(err, driver.ErrExists):
		return http.StatusConflict, "failed-precondition"
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, "permission-denied"
	case errors.Is(err, driver.ErrNotVerified), errors.Is(err, driver.ErrSuspended),
		errors.Is(err, driver.ErrCashBlocked), errors.Is(err, driver.ErrNotAvailable),
		errors.Is(err, driver.ErrOtherMerchant):
		return http.StatusForbidden, "driver-ineligible"
	case errors.Is(err, order.ErrBadRequest), errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, location.ErrInvalidPosition):
		return http.StatusBadRequest, "invalid-argument"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeDomainError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	writeError(c, status, code, msg)
}
