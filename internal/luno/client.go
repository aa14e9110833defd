// Package luno is a small REST client for the Luno exchange API.
package luno

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL           = "https://api.luno.com"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 60
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 500 * time.Millisecond

	maxResponseBytes = 8 << 20
	userAgent        = "lunomcp"
)

// ErrNoCredentials is returned by private endpoints when no API key and
// secret are configured. No request is sent.
var ErrNoCredentials = stderrors.New("luno: API key and secret are required for this endpoint")

// APIError is a non-2xx reply from the exchange.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("luno: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("luno: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string

	Timeout time.Duration
	// RequestsPerMinute throttles outbound calls; negative disables throttling.
	RequestsPerMinute int
	// MaxRetries is the number of retries after the first attempt; negative
	// disables retries.
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client calls the exchange. It is safe for concurrent use; all callers
// share one outbound token bucket.
type Client struct {
	baseURL    *url.URL
	key        string
	secret     string
	http       *http.Client
	limiter    *rate.Limiter
	attempts   uint
	retryDelay time.Duration
	log        logrus.FieldLogger
}

// New returns a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("base url %q must be http or https", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    base,
		key:        cfg.APIKey,
		secret:     cfg.APISecret,
		http:       cfg.HTTPClient,
		limiter:    newThrottle(cfg.RequestsPerMinute),
		attempts:   uint(cfg.MaxRetries) + 1,
		retryDelay: cfg.RetryDelay,
		log:        cfg.Logger.WithField("component", "luno"),
	}, nil
}

// newThrottle spreads requestsPerMinute evenly, allowing a burst of one
// second's worth. A non-positive budget disables throttling.
func newThrottle(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := requestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), burst)
}

// HasCredentials reports whether private endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.key != "" && c.secret != ""
}

type call struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	auth   bool
}

func (c *Client) do(ctx context.Context, req call) (json.RawMessage, error) {
	if req.auth && !c.HasCredentials() {
		return nil, ErrNoCredentials
	}

	log := c.log.WithFields(logrus.Fields{"method": req.method, "path": req.path})

	var body json.RawMessage
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			data, err := c.send(ctx, req)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("Exchange request failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// send performs one attempt. Errors that must not be retried are wrapped
// with retry.Unrecoverable.
func (c *Client) send(ctx context.Context, req call) (json.RawMessage, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var payload io.Reader
	if req.form != nil {
		payload = strings.NewReader(req.form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), payload)
	if err != nil {
		return nil, retry.Unrecoverable(errors.Wrap(err, "build request"))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.HasCredentials() {
		httpReq.SetBasicAuth(c.key, c.secret)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(ctx.Err())
		}
		return nil, errors.Wrapf(err, "%s %s", req.method, req.path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", req.path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, data)
		if apiErr.Temporary() {
			return nil, apiErr
		}
		return nil, retry.Unrecoverable(apiErr)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, retry.Unrecoverable(errors.Errorf("%s %s: response is not JSON", req.method, req.path))
	}
	return data, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
		if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 200 && err != nil {
			apiErr.Message = msg
		}
	}
	apiErr.StatusCode = status
	return apiErr
}
