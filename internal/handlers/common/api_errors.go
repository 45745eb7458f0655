package common

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "neuromail-go/internal/errors"
	"neuromail-go/internal/logging"
	"neuromail-go/internal/upstream"

	"github.com/gin-gonic/gin"
)

// AbortWithAPIError writes the error envelope and aborts the request.
func AbortWithAPIError(c *gin.Context, err *apperrors.APIError) {
	if err == nil {
		err = apperrors.New(http.StatusInternalServerError, "server_error", "server_error", "unknown error")
	}
	c.AbortWithStatusJSON(safeStatus(err.HTTPStatus), err.Envelope())
}

// AbortWithError constructs an APIError from the provided fields and aborts the request.
func AbortWithError(c *gin.Context, status int, typ, message string) {
	typ = normalizeType(typ)
	AbortWithAPIError(c, apperrors.New(safeStatus(status), typ, typ, firstNonEmpty(message, "internal error")))
}

// BadRequest aborts with a 400 invalid_request_error.
func BadRequest(c *gin.Context, message string) {
	AbortWithError(c, http.StatusBadRequest, "invalid_request_error", message)
}

// AbortWithUpstreamError translates a mail-service failure into a gateway
// response and records it on the gin context for the request logger.
func AbortWithUpstreamError(c *gin.Context, err error) {
	_ = c.Error(err)
	apiErr := UpstreamAPIError(err)
	logging.WithReq(c, nil).WithError(err).WithField("status", apiErr.HTTPStatus).Debug("upstream call failed")
	AbortWithAPIError(c, apiErr)
}

// UpstreamAPIError maps errors returned by the upstream client. Key failures
// surface as 502 since the caller's own credentials are not involved.
func UpstreamAPIError(err error) *apperrors.APIError {
	var apiErr *apperrors.APIError
	switch {
	case err == nil:
		return apperrors.New(http.StatusInternalServerError, "server_error", "server_error", "unknown error")
	case errors.Is(err, upstream.ErrNoCredentialAvailable):
		return apperrors.New(http.StatusServiceUnavailable, "no_credential", "service_unavailable", err.Error())
	case errors.Is(err, context.Canceled):
		return apperrors.New(http.StatusRequestTimeout, "request_cancelled", "timeout_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.New(http.StatusGatewayTimeout, "timeout", "timeout_error", err.Error())
	case errors.As(err, &apiErr):
		status := apiErr.HTTPStatus
		if status == http.StatusUnauthorized || status == http.StatusPaymentRequired || status == http.StatusTooManyRequests {
			status = http.StatusBadGateway
		}
		out := apperrors.New(safeStatus(status), apiErr.Code, apiErr.Type, err.Error())
		out.Details = map[string]interface{}{"upstream_status": apiErr.HTTPStatus}
		return out
	default:
		return apperrors.New(http.StatusBadGateway, "bad_gateway", "server_error", err.Error())
	}
}

func normalizeType(typ string) string {
	if strings.TrimSpace(typ) == "" {
		return "server_error"
	}
	return typ
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func safeStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return http.StatusInternalServerError
}
