// internal/common/http/client.go
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"scheduler-stats/internal/common/auth"
	"scheduler-stats/internal/common/errors"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/common/metrics"
)

const RequestIDHeader = "X-Request-ID"

// Response is a backend reply with the body fully read. Body is never altered.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// JSON returns the body as a raw JSON message.
func (r *Response) JSON() json.RawMessage {
	return json.RawMessage(r.Body)
}

// Client is the shared request-issuing component for the statistics backend.
// It resolves paths against the base URL, attaches auth and request IDs, and
// records metrics and spans. It never retries or caches.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     auth.TokenSource
	userAgent  string
	tracer     trace.Tracer
	logger     logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. The timeout argument of NewClient is then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTokenSource(ts auth.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base url must not be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "scheduler-stats",
		tracer:    otel.Tracer("scheduler-stats/http"),
		logger:    logger.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns a copy of the configured base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Get issues a GET request. path is joined onto the base URL path and must
// already be escaped; query may be nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query)
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	return u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	endpoint := metrics.EndpointLabel(path)
	requestID := uuid.NewString()
	target := c.resolve(path, query)

	ctx, span := c.tracer.Start(ctx, "HTTP "+method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target.Redacted()),
			attribute.String("stats.endpoint", endpoint),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "obtain token")
			return nil, fmt.Errorf("obtain token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	metrics.StatsRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	if err != nil {
		metrics.StatsRequests.WithLabelValues(endpoint, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		c.logger.Warn("stats request failed", map[string]interface{}{
			"method":    method,
			"path":      path,
			"requestId": requestID,
			"duration":  elapsed.String(),
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.StatsRequests.WithLabelValues(endpoint, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, fmt.Errorf("http %s %s: read body: %w", method, path, err)
	}

	metrics.StatsRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	c.logger.Debug("stats request completed", map[string]interface{}{
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"requestId": requestID,
		"duration":  elapsed.String(),
		"bytes":     len(body),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, &errors.ResponseError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  requestID,
	}, nil
}
