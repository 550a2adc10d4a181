// Package identity holds the HTTP transport shared by the KYC and wallet
// assertion clients.
//
// Clients hold no session state. The only mutable value on a Transport is the
// bearer token, which the session service keeps equal to the current KYC
// access token.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"minerva/internal/platform/metrics"
	"minerva/pkg/requestcontext"
)

const (
	tracerName      = "minerva/identity"
	requestIDHeader = "X-Request-ID"
	userAgent       = "minerva-session/1.0"
	maxBodyBytes    = 1 << 20
)

// Transport performs JSON requests against the remote authority.
type Transport struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.RWMutex
	bearer string
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the default client (tests pass httptest clients).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// WithMetrics records request durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Transport) {
		if tp != nil {
			t.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewTransport creates a transport for the authority at baseURL.
func NewTransport(baseURL string, opts ...Option) *Transport {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	t := &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BaseURL returns the authority base URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// SetBearer installs the Authorization header sent on every request.
func (t *Transport) SetBearer(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bearer = token
}

// ClearBearer removes the Authorization header.
func (t *Transport) ClearBearer() {
	t.SetBearer("")
}

// Bearer returns the token currently sent as Authorization.
func (t *Transport) Bearer() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bearer
}

// Do sends body as JSON to path and decodes the envelope's data into out.
// out may be nil for fire-and-forget endpoints. Every failure is a *RemoteError.
func (t *Transport) Do(ctx context.Context, operation, method, path string, body, out any) (err error) {
	ctx, requestID := requestcontext.EnsureRequestID(ctx)
	ctx, span := t.tracer.Start(ctx, "identity."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("request.id", requestID),
		),
	)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		t.metrics.ObserveRequest(operation, outcome, time.Since(start).Seconds())
	}()

	req, err := t.newRequest(ctx, method, path, body, requestID)
	if err != nil {
		return NewRemoteError(ErrorBadData, operation, 0, "encode request", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return NewRemoteError(ErrorTimeout, operation, 0, "request timed out", err)
		}
		return NewRemoteError(ErrorUnavailable, operation, 0, "request failed", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return NewRemoteError(ErrorUnavailable, operation, resp.StatusCode, "read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusInternalServerError {
		re := NewRemoteError(ErrorUnavailable, operation, resp.StatusCode, env.Message, nil)
		re.Code = env.Error
		return re
	}
	if resp.StatusCode >= http.StatusBadRequest || (decodeErr == nil && !env.Success) {
		re := NewRemoteError(ErrorRejected, operation, resp.StatusCode, env.Message, nil)
		re.Code = env.Error
		return re
	}
	if decodeErr != nil {
		return NewRemoteError(ErrorBadData, operation, resp.StatusCode, "malformed envelope", decodeErr)
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return NewRemoteError(ErrorBadData, operation, resp.StatusCode, "missing data", nil)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return NewRemoteError(ErrorBadData, operation, resp.StatusCode, "malformed data", err)
	}
	return nil
}

func (t *Transport) newRequest(ctx context.Context, method, path string, body any, requestID string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDHeader, requestID)
	if bearer := t.Bearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// MissingField reports a success payload that lacks a required field.
func MissingField(operation, field string) *RemoteError {
	return NewRemoteError(ErrorBadData, operation, http.StatusOK, "response missing "+field, nil)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return string(re.Category)
	}
	return "error"
}
