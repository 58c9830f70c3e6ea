package productapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geocoder89/shopadmin/internal/domain/product"
	"github.com/geocoder89/shopadmin/internal/observability"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "product_api"

type Config struct {
	BaseURL      string // http://localhost:8800
	ProductsPath string // /products
	HTTPClient   *http.Client
	Breaker      *upstream.Breaker
	Observer     observability.UpstreamObserver
}

type Client struct {
	base    *url.URL
	path    string
	http    *http.Client
	breaker *upstream.Breaker
	obs     observability.UpstreamObserver
	tracer  trace.Tracer
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("product api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("product api base url %q: missing scheme or host", cfg.BaseURL)
	}

	path := cfg.ProductsPath
	if path == "" {
		path = "/products"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
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
		base:    base,
		path:    "/" + strings.Trim(path, "/"),
		http:    client,
		breaker: breaker,
		obs:     obs,
		tracer:  observability.Tracer("shopadmin/productapi"),
	}, nil
}

// ListProducts fetches the full product collection.
func (c *Client) ListProducts(ctx context.Context) ([]product.Record, error) {
	var out []product.Record

	err := c.call(ctx, "list", http.MethodGet, c.endpoint(""), func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode products: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = []product.Record{}
	}
	return out, nil
}

// RemoveProduct deletes one product. A 404 maps to product.ErrNotFound.
func (c *Client) RemoveProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return product.ErrNotFound
	}

	err := c.call(ctx, "remove", http.MethodDelete, c.endpoint(id), nil)

	var se *upstream.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("remove product %s: %w", id, product.ErrNotFound)
	}
	return err
}

func (c *Client) endpoint(id string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + c.path
	if id != "" {
		u.Path += "/" + id
		u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + c.path + "/" + url.PathEscape(id)
	}
	return u.String()
}

func (c *Client) call(ctx context.Context, op, method, target string, decode func(*http.Response) error) error {
	ctx, span := c.tracer.Start(ctx, "productapi."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", target),
	)

	err := c.obs.ObserveUpstream(serviceName, op, func() error {
		return c.breaker.Do(ctx, upstream.CountsAsFailure, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, method, target, nil)
			if err != nil {
				return fmt.Errorf("error creating request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", "shopadmin/1.0")
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("%s %s: %w", serviceName, op, err)
			}
			defer resp.Body.Close()

			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, upstream.MaxErrorBody))
				return &upstream.StatusError{Service: serviceName, Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			}

			if decode == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			return decode(resp)
		})
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
