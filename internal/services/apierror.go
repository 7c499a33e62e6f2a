package services

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError reports a non-success HTTP response from an external service.
type APIError struct {
	Service    string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return strings.TrimSpace(fmt.Sprintf("%s API error: %d %s", e.Service, e.Status, strings.TrimSpace(e.Body)))
}

// Unwrap classifies the response so errors.Is works against the sentinel markers.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrConfiguration
	case e.Status == http.StatusRequestTimeout || e.Status == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError:
		return ErrTransient
	default:
		return ErrExternalTool
	}
}

// Retryable reports whether the response status warrants another attempt.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests ||
		e.Status >= http.StatusInternalServerError
}
