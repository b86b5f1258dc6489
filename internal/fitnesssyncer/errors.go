package fitnesssyncer

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the provider. Body holds at most the
// first 2 KiB of the response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fitnesssyncer error %d: %s", e.StatusCode, e.Body)
}

func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
