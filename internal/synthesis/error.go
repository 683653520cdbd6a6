package synthesis

import "fmt"

// Error classifies a failed synthesis call. Rate limits, timeouts and 5xx
// responses are retryable; invalid input and exhausted quota are permanent.
type Error struct {
	StatusCode    int
	Retryable     bool
	QuotaExceeded bool
	Message       string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("synthesis: status %d: %s", e.StatusCode, e.Message)
	}
	return "synthesis: " + e.Message
}

func (e *Error) IsRetryable() bool { return e.Retryable }
