package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tenxcards/tenxcards-go/internal/model"
	"github.com/tenxcards/tenxcards-go/internal/validation"
)

var ErrInvalidID = errors.New("invalid id")

// APIError is a failed call. StatusCode 0 means the server was never
// reached or its answer could not be read.
type APIError struct {
	StatusCode int
	Payload    *model.ErrorResponse
	// Body is the decoded response body, kept for relaying.
	Body    json.RawMessage
	Message string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: defaultAPIErrorMessage}
	if json.Valid(body) {
		apiErr.Body = json.RawMessage(body)
	}

	var payload model.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Payload = &payload
	} else {
		// Some proxies answer with a body that only loosely matches.
		var loose struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &loose) == nil {
			apiErr.Payload = &model.ErrorResponse{Message: loose.Message}
		}
	}

	if apiErr.Payload != nil && apiErr.Payload.Message != "" {
		apiErr.Message = apiErr.Payload.Message
	}
	return apiErr
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsStatus(err error, status int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == status
}

// FieldErrors extracts per-field messages from a 400 response or a local
// validation failure. It returns nil when err carries none.
func FieldErrors(err error) map[string]string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Fields
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusBadRequest {
		return nil
	}
	return validation.ParseFieldErrors(apiErr.Message)
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
