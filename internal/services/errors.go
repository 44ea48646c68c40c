package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// QuotaError is returned when the quota gate refuses an analysis. It is a
// normal outcome the client turns into a watch-ad or upgrade prompt.
type QuotaError struct {
	Result quota.Result
}

func (e *QuotaError) Error() string {
	if e.Result.Decision == quota.RequireUpgrade {
		return "document is too long for the free plan"
	}
	return "daily analysis limit reached"
}

// StatusCode is 402 for documents over the free length cap and 429 when
// the daily allowance is used up.
func (e *QuotaError) StatusCode() int {
	if e.Result.Decision == quota.RequireUpgrade {
		return http.StatusPaymentRequired
	}
	return http.StatusTooManyRequests
}

// appError converts engine errors into errors the handlers can render.
func appError(err error, action string) error {
	var (
		ae  *utils.AppError
		qe  *QuotaError
		agg *orchestrator.AggregateError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae), errors.As(err, &qe):
		return err
	case errors.Is(err, orchestrator.ErrNotConfigured):
		return utils.NewUnavailableError("AI service is not configured").WithCause(err)
	case errors.As(err, &agg):
		return utils.NewInternalError(fmt.Sprintf("%s failed, please try again", action)).
			WithDetails(agg.Error()).
			WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return (&utils.AppError{StatusCode: http.StatusGatewayTimeout, Message: action + " timed out"}).WithCause(err)
	case errors.Is(err, quota.ErrMissingDevice):
		return utils.NewBadRequestError("device id is required").WithCause(err)
	default:
		return utils.NewInternalError(fmt.Sprintf("%s failed", action)).WithCause(err)
	}
}
