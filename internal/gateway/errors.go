package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Fallback messages used when the backend does not supply one.
const (
	msgAuthFailed     = "Authentication failed"
	msgDigestFailed   = "Failed to generate daily digest"
	msgVideoFailed    = "Failed to generate video."
	msgSummaryFailed  = "Failed to get summary."
	msgEmailFailed    = "Failed to fetch email content."
	msgRequestFailed  = "Request failed"
	maxErrorBodyBytes = 64 << 10
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	// Op is the gateway operation (e.g., "summarize", "generate_digest")
	Op string

	StatusCode int

	// Message is the backend's message, or a fallback for the operation
	Message string
}

// Error returns the backend message so it can be shown to the user verbatim.
func (e *APIError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

func newAPIError(op string, resp *http.Response, fallback string) *APIError {
	apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: fallback}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("%s (status %d)", msgRequestFailed, resp.StatusCode)
	}
	return apiErr
}
