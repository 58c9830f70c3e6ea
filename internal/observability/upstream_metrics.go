package observability

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// UpstreamObserver records latency and failures of calls to external APIs.
// A nil *Prom is valid and records nothing.
type UpstreamObserver interface {
	ObserveUpstream(service, op string, fn func() error) error
}

func (p *Prom) ObserveUpstream(service, op string, fn func() error) error {
	start := time.Now()
	err := fn()

	if p == nil {
		return err
	}

	status := "ok"

	if err != nil {
		status = "error"
		p.UpstreamErrorsTotal.WithLabelValues(service, op, classifyUpstreamErr(err)).Inc()
	}
	p.UpstreamDuration.WithLabelValues(service, op, status).Observe(time.Since(start).Seconds())
	return err
}

func (p *Prom) ObserveDelete(result string) {
	if p == nil {
		return
	}
	p.DeletesTotal.WithLabelValues(result).Inc()
}

type statusCoder interface {
	StatusCode() int
}

func classifyUpstreamErr(err error) string {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == 404:
			return "not_found"
		case code >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "connection"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit"):
		return "circuit_open"
	case strings.Contains(msg, "decode"):
		return "decode"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "unknown"
	}
}
