package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	xhttp "github.com/danghungithp/chungquyen-VN/pkg/http"
)

// toAppError maps a domain error onto an HTTP status and a stable code.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	kind := models.ErrorKind(err)
	code := "ERR_" + strings.ToUpper(kind)
	var out *xhttp.AppError
	switch kind {
	case models.KindInvalidParameter:
		out = xhttp.NewAppError(code, "", err.Error(), http.StatusBadRequest)
	case models.KindInsufficientData, models.KindAllocationUndefined, models.KindNonConvergence:
		out = xhttp.UnprocessableError(code, err.Error())
	case models.KindExternalFetch:
		out = xhttp.BadGatewayError(err.Error())
	default:
		out = xhttp.InternalError("internal error")
	}
	return out.WithError(err)
}

func rateLimited() *xhttp.AppError {
	return xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests)
}
