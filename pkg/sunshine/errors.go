package sunshine

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken  = errors.New("api token is required")
	ErrMissingAPIURL = errors.New("api url is required")
)

// APIError is returned for any non-2xx response from the Sunshine API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sunshine API error (status %d): %s", e.StatusCode, e.Message)
}
