package cnwactivation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB

	tracerName = "github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation"
)

// Response is the raw outcome of a request that reached the server. The
// caller owns all interpretation of the status code and body.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport executes licensing API requests. An error means no response was
// received; HTTP error statuses are returned as a Response.
type Transport interface {
	CreateActivation(ctx context.Context, body []byte) (*Response, error)
	UpdateActivation(ctx context.Context, activationID string, body []byte) (*Response, error)
	DeleteActivation(ctx context.Context, activationID string) (*Response, error)
	Get(ctx context.Context, path string, query url.Values) (*Response, error)
}

// HTTPClient is the default Transport, speaking JSON to the licensing API.
type HTTPClient struct {
	serverURL  string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// NewHTTPClient creates a client for the licensing server.
// serverURL is the API base URL (e.g. "https://api.example.com/v3").
func NewHTTPClient(serverURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		timeout:   defaultTimeout,
		userAgent: "cnw-activation-sdk-go/" + ClientVersion,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Apply timeout after all options so ordering doesn't matter.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// CreateActivation sends POST /activations.
func (c *HTTPClient) CreateActivation(ctx context.Context, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/activations", nil, body)
}

// UpdateActivation sends PATCH /activations/{id}.
func (c *HTTPClient) UpdateActivation(ctx context.Context, activationID string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPatch, "/activations/"+url.PathEscape(activationID), nil, body)
}

// DeleteActivation sends DELETE /activations/{id}.
func (c *HTTPClient) DeleteActivation(ctx context.Context, activationID string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "/activations/"+url.PathEscape(activationID), nil, nil)
}

// Get sends GET path?query.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "cnwactivation."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	resp, err := c.roundTrip(ctx, method, path, query, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	target := c.serverURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
