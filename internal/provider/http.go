package provider

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultClientTimeout = 10 * time.Second
	// Upper bound on error bodies kept for log messages.
	maxErrorBody = 512
)

// httpCore is the transport shared by every connector: one circuit breaker
// per source and optional exponential backoff on transient failures.
type httpCore struct {
	id      string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	retries int
	params  map[string]string
	logger  *zap.Logger
	tele    *telemetry.Telemetry
}

func newHTTPCore(cfg config.SourceConfig, client *http.Client, logger *zap.Logger, tele *telemetry.Telemetry) *httpCore {
	timeout := defaultClientTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	var transport http.RoundTripper
	if client != nil {
		transport = client.Transport
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &httpCore{
		id: cfg.ID,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.ID,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("source", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		retries: cfg.Retries,
		params:  cfg.Params,
		logger:  logger.With(zap.String("source", cfg.ID)),
		tele:    tele,
	}
}

func (c *httpCore) startSpan(ctx context.Context, lat, lon float64) (context.Context, trace.Span) {
	ctx, span := c.tele.GetTracer().Start(ctx, "provider."+c.id+".Fetch")
	span.SetAttributes(
		attribute.String("source", c.id),
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
	)
	return ctx, span
}

// buildURL joins base and path and applies query, then any configured
// parameter overrides.
func (c *httpCore) buildURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	for key, value := range c.params {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// getJSON issues a GET through the circuit breaker and decodes a 2xx JSON body
// into out. Client errors other than 429 are not retried.
func (c *httpCore) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		req.Header.Set("Accept", "application/json")

		status := 0
		result, err := c.circuit.Execute(func() (interface{}, error) {
			resp, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}

			status = resp.StatusCode
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
			}

			return resp, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		resp, ok := result.(*http.Response)
		if !ok {
			return backoff.Permanent(fmt.Errorf("unexpected result type from circuit breaker"))
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	retries := c.retries
	if retries < 0 {
		retries = 0
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Retrying upstream request", zap.Error(err), zap.Duration("wait", wait))
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx),
		notify)
}

func coordQuery(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func baseOr(cfg config.SourceConfig, fallback string) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return fallback
}
