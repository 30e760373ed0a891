package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TransportError reports a provider call that was unreachable or answered
// with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int // zero when no response was received
	Message    string
	Type       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("provider %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("provider %s: transport error", e.Op)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newStatusError(op string, status int, body []byte) *TransportError {
	te := &TransportError{Op: op, StatusCode: status}
	var errorResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		te.Message = errorResp.Error.Message
		te.Type = errorResp.Error.Type
	}
	return te
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether repeating the same call may succeed: no
// response at all, 408, 429 or any 5xx.
func IsRetryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch {
	case te.StatusCode == 0:
		return true
	case te.StatusCode == http.StatusRequestTimeout, te.StatusCode == http.StatusTooManyRequests:
		return true
	case te.StatusCode >= 500:
		return true
	}
	return false
}
