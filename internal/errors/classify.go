package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
)

// FailureKind tags the outcome of a single upstream attempt.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureCredential implicates the key: 401, quota or rate limit.
	FailureCredential
	// FailureGeneric is any other transport, status or parse failure.
	FailureGeneric
	// FailureTimeout is a generic failure caused by the attempt deadline.
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "success"
	case FailureCredential:
		return "credential_failure"
	case FailureGeneric:
		return "generic_failure"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var credentialSignals = []string{"401", "unauthorized", "quota", "limit"}

// Classify decides whether err implicates the credential that was used.
// Only upstream API errors can; their status is checked first, then the
// message for any credential signal. Transport errors carry the request URL
// in their text, so they are classified by type alone.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.HTTPStatus {
		case http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusPaymentRequired:
			return FailureCredential
		}
		msg := strings.ToLower(apiErr.Message)
		for _, sig := range credentialSignals {
			if strings.Contains(msg, sig) {
				return FailureCredential
			}
		}
		return FailureGeneric
	}

	if isTimeout(err) {
		return FailureTimeout
	}
	return FailureGeneric
}

// IsCredentialFailure reports whether err should rotate the pool.
func IsCredentialFailure(err error) bool {
	return Classify(err) == FailureCredential
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
