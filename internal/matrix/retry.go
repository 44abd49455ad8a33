package matrix

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/striezel/botvinnik-sub001/pkg/log"
)

const (
	defaultRateLimitRetries = 6
	maxRetryAfter           = 2 * time.Minute
)

type rateLimitPayload struct {
	ErrCode      string `json:"errcode"`
	RetryAfterMs int    `json:"retry_after_ms"`
}

// parseRetryAfter extracts the server-requested cooldown from an
// M_LIMIT_EXCEEDED response body. Returns zero when the body carries no
// usable cooldown.
func parseRetryAfter(body []byte) time.Duration {
	var payload rateLimitPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	if payload.ErrCode != errCodeLimitExceeded || payload.RetryAfterMs <= 0 {
		return 0
	}
	return time.Duration(payload.RetryAfterMs) * time.Millisecond
}

// retryAfterFromError pulls the cooldown out of a ServerError, falling
// back to a one-second pause for rate-limit responses without one.
func retryAfterFromError(err error) time.Duration {
	var se *ServerError
	if !errors.As(err, &se) || se.Code != errCodeLimitExceeded {
		return 0
	}
	if se.retryAfter > 0 {
		return capRetryAfter(se.retryAfter)
	}
	return time.Second
}

func capRetryAfter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepWithLog(call string, d time.Duration) {
	if d <= 0 {
		return
	}
	log.WithFields(map[string]interface{}{
		"call":    call,
		"wait_ms": d.Milliseconds(),
	}).Info("matrix api wait")
	time.Sleep(d)
}
