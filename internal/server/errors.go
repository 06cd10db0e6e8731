package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	userdomain "github.com/kolektiva/kolektiva/internal/user/domain"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	withdrawaldomain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
)

type errorPayload struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrTooManyTries   = errors.New("too_many_attempts")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError translates domain errors into responses. Gate failures all
// collapse into one opaque message so a caller cannot probe which factor
// failed; eligibility failures stay structured so the user knows how to fix
// them.
func mapError(err error) (int, errorPayload) {
	switch {
	case verificationdomain.IsGateError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "verification_failed",
			Message: "verification failed",
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "authentication required",
		}
	case errors.Is(err, ErrTooManyTries):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_attempts",
			Message: "too many attempts, try again later",
		}

	case errors.Is(err, autopaydomain.ErrUserIsDefaulter):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:        "user_is_defaulter",
			Message:     "auto-pay cannot be enabled while you have overdue contributions",
			Remediation: "settle your overdue contributions, then try again",
		}
	case errors.Is(err, autopaydomain.ErrMissingInstrument):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:        "missing_funding_instrument",
			Message:     "auto-pay requires a funding instrument",
			Remediation: "add a funding instrument, then enable auto-pay",
		}
	case errors.Is(err, groupdomain.ErrDeadlinePassed):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "deadline_passed",
			Message: "the group deadline has already passed",
		}
	case errors.Is(err, autopaydomain.ErrInvalidTiming),
		errors.Is(err, verificationdomain.ErrInvalidAction),
		errors.Is(err, contributiondomain.ErrInvalidAmount),
		errors.Is(err, withdrawaldomain.ErrInvalidAmount),
		errors.Is(err, groupdomain.ErrInvalidType),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}

	case errors.Is(err, walletdomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_balance",
			Message: "balance is not sufficient for this withdrawal",
		}

	case errors.Is(err, contributiondomain.ErrAlreadySettled),
		errors.Is(err, contributiondomain.ErrConfirmedImmutable),
		errors.Is(err, contributiondomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "the obligation is not in a state that allows this change",
		}

	case errors.Is(err, contributiondomain.ErrObligationNotFound),
		errors.Is(err, autopaydomain.ErrPreferenceNotFound),
		errors.Is(err, withdrawaldomain.ErrRequestNotFound),
		errors.Is(err, groupdomain.ErrGroupNotFound),
		errors.Is(err, userdomain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
