package upstream

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx answer from an upstream api.
type StatusError struct {
	Service string
	Op      string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: http %d: %s", e.Service, e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: http %d", e.Service, e.Op, e.Code)
}

func (e *StatusError) StatusCode() int { return e.Code }

// CountsAsFailure reports whether err says something about upstream health.
// Client errors (4xx) are the caller's problem and do not trip a breaker.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// MaxErrorBody caps how much of an error body is kept on a StatusError.
const MaxErrorBody = 512
