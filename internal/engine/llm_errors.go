package engine

import (
	"context"
	"errors"
	"net"
	"strings"

	"inkwell/engine/internal/errinfo"
	"inkwell/engine/internal/llm"
)

func mapLLMError(phase string, err error) *errinfo.ErrorInfo {
	if errors.Is(err, llm.ErrNoAPIKey) {
		return errinfo.ProviderNotConfigured(phase)
	}
	if errors.Is(err, llm.ErrUnauthorized) {
		return errinfo.ProviderAuthFailed(phase)
	}
	if errors.Is(err, llm.ErrEgressBlocked) {
		return errinfo.EgressBlocked(phase, "provider endpoint not allowed")
	}
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, llm.ErrRateLimited) {
		return errinfo.ProviderUnavailable(phase, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return errinfo.UserCanceled(phase, "run canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errinfo.NetworkUnavailable(phase, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errinfo.NetworkUnavailable(phase, err.Error())
	}
	if isCredentialError(err) {
		return errinfo.ProviderAuthFailed(phase)
	}
	return errinfo.ProviderUnavailable(phase, err.Error())
}

// isCredentialError catches auth failures that arrive as plain error text
// rather than a mapped status, e.g. from a proxy in front of the API.
func isCredentialError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "api key") ||
		strings.Contains(text, "authentication") ||
		strings.Contains(text, "unauthorized") ||
		strings.Contains(text, "invalid x-api-key")
}
