package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps transport failures where no response arrived.
	ErrUnavailable = errors.New("no response from server")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("server error occurred")
	// ErrMalformedResponse wraps bodies that are not valid JSON.
	ErrMalformedResponse = errors.New("malformed response body")
)

// Error is a failed backend call. Message carries the server's own "error"
// field when the response had one.
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage picks the text to show in an error state.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) {
		switch {
		case be.Message != "":
			return be.Message
		case errors.Is(be.Err, ErrUnavailable):
			return ErrUnavailable.Error()
		case errors.Is(be.Err, ErrStatus):
			return ErrStatus.Error()
		}
	}
	if err == nil {
		return ""
	}
	return "Error occurred while making request"
}

func statusError(endpoint string, status int, body []byte) *Error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	return &Error{
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    payload.Error,
		Err:        ErrStatus,
	}
}
