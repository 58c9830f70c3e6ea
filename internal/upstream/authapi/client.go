package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/observability"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "auth_api"

type Config struct {
	BaseURL    string // http://localhost:8800
	LoginPath  string // /login
	HTTPClient *http.Client
	Breaker    *upstream.Breaker
	Observer   observability.UpstreamObserver
}

// Client posts credentials to the auth api. It implements login.Authenticator.
type Client struct {
	loginURL string
	http     *http.Client
	breaker  *upstream.Breaker
	obs      observability.UpstreamObserver
	tracer   trace.Tracer
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("auth api base url %q: missing scheme or host", cfg.BaseURL)
	}

	path := cfg.LoginPath
	if path == "" {
		path = "/login"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = upstream.NewBreaker(upstream.BreakerConfig{})
	}

	obs := cfg.Observer
	if obs == nil {
		obs = (*observability.Prom)(nil)
	}

	return &Client{
		loginURL: base.String(),
		http:     client,
		breaker:  breaker,
		obs:      obs,
		tracer:   observability.Tracer("shopadmin/authapi"),
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login never returns nil. A body carrying a status, even on a 4xx, is an
// answer (Accepted or Rejected); everything else is Failed.
func (c *Client) Login(ctx context.Context, creds login.Credentials) login.Outcome {
	ctx, span := c.tracer.Start(ctx, "authapi.login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var out login.Outcome

	err := c.obs.ObserveUpstream(serviceName, "login", func() error {
		return c.breaker.Do(ctx, upstream.CountsAsFailure, func(ctx context.Context) error {
			resp, err := c.post(ctx, creds)
			if err != nil {
				return err
			}
			out = login.Classify(resp)
			return nil
		})
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return login.Failed{Err: err}
	}

	if _, ok := out.(login.Accepted); ok {
		span.SetAttributes(attribute.Bool("login.accepted", true))
	}
	return out
}

func (c *Client) post(ctx context.Context, creds login.Credentials) (login.Response, error) {
	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return login.Response{}, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return login.Response{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return login.Response{}, fmt.Errorf("%s login: %w", serviceName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return login.Response{}, fmt.Errorf("%s login: read body: %w", serviceName, err)
	}

	var decoded login.Response
	decodeErr := json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if decodeErr != nil {
			return login.Response{}, fmt.Errorf("%s login: decode body: %w", serviceName, decodeErr)
		}
		return decoded, nil

	case resp.StatusCode >= 400 && resp.StatusCode <= 499 && decodeErr == nil && decoded.Status != "":
		return decoded, nil

	default:
		snippet := string(raw)
		if len(snippet) > upstream.MaxErrorBody {
			snippet = snippet[:upstream.MaxErrorBody]
		}
		return login.Response{}, &upstream.StatusError{Service: serviceName, Op: "login", Code: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
}

// IsCircuitOpen reports whether a Failed outcome came from an open breaker.
func IsCircuitOpen(out login.Outcome) bool {
	f, ok := out.(login.Failed)
	return ok && errors.Is(f.Err, upstream.ErrCircuitOpen)
}
