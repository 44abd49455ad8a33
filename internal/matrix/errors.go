package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ServerError is a structured error response from the homeserver. Extract
// it with errors.As to branch on the Matrix error code.
type ServerError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`

	retryAfter time.Duration
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("matrix: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes the bot reacts to. ErrCodeUnknownToken is exported so the
// sync loop can stop retrying once the homeserver rejects the token.
const (
	errCodeLimitExceeded = "M_LIMIT_EXCEEDED"

	ErrCodeUnknownToken = "M_UNKNOWN_TOKEN"
)

// serverError builds a ServerError from a non-2xx response body. Bodies
// that are not the standard errcode shape still yield a usable error with
// the raw body as the message.
func serverError(statusCode int, body []byte) error {
	se := &ServerError{StatusCode: statusCode}
	if err := json.Unmarshal(body, se); err != nil || se.Code == "" {
		se.Code = "M_UNKNOWN"
		se.Message = string(body)
	}
	if se.Code == errCodeLimitExceeded {
		se.retryAfter = parseRetryAfter(body)
	}
	return se
}

// IsServerError reports whether err carries the given Matrix error code.
func IsServerError(err error, code string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Code == code
}
