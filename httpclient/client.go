package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/resilience"
)

// Client is an HTTP client with retry, a circuit breaker and per-request
// proxy selection.
type Client struct {
	config    Config
	transport *http.Transport
	breaker   *resilience.Breaker
	log       *logger.Logger

	mu      sync.Mutex
	proxied map[string]*http.Transport
}

// New creates a client from cfg.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("httpclient").WithFields(map[string]interface{}{"client": cfg.Name})

	c := &Client{
		config:    cfg,
		transport: http.DefaultTransport.(*http.Transport).Clone(),
		log:       log,
		proxied:   make(map[string]*http.Transport),
	}
	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		if bc.Name == "" {
			bc.Name = cfg.Name
		}
		bc.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn("HTTP circuit breaker state changed", map[string]interface{}{
				"from": from.String(), "to": to.String(),
			})
		}
		c.breaker = resilience.NewBreaker(bc)
	}
	return c, nil
}

// Do executes req, retrying retryable failures under the configured policy.
// A non-2xx response is returned together with a classified *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	policy := resilience.NoRetry()
	if c.config.Retry != nil {
		policy = *c.config.Retry
	}

	var resp *Response
	err := resilience.Do(ctx, policy, func(int) error {
		var err error
		resp, err = c.doOnce(ctx, req)
		return err
	}, IsRetryable, func(attempt int, err error, backoff time.Duration) {
		c.log.Debug("HTTP request failed, retrying", map[string]interface{}{
			"attempt":         attempt,
			logger.FieldError: err.Error(),
			"backoff_ms":      backoff.Milliseconds(),
		})
	})
	return resp, err
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.proxied {
		t.CloseIdleConnections()
	}
}

func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	if c.breaker == nil {
		return c.execute(ctx, req)
	}
	if !c.breaker.Allow() {
		return nil, resilience.ErrBreakerOpen
	}
	resp, err := c.execute(ctx, req)
	// Client errors (4xx) say nothing about the target's health.
	if IsRetryable(err) {
		c.breaker.Record(err)
	} else {
		c.breaker.Record(nil)
	}
	return resp, err
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	timeout := c.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	transport, err := c.transportFor(req.Proxy)
	if err != nil {
		return nil, err
	}

	resp, err := (&http.Client{Transport: transport}).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ErrCodeTimeout, err)
		}
		return nil, transportError(ErrCodeConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, transportError(ErrCodeConnection, fmt.Errorf("read response body: %w", err))
	}
	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}
	if classErr := ClassifyStatusCode(resp.StatusCode, body); classErr != nil {
		return result, classErr
	}
	return result, nil
}

// transportFor returns the shared transport, or one cached per proxy URL.
func (c *Client) transportFor(proxy string) (*http.Transport, error) {
	if proxy == "" {
		return c.transport, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.proxied[proxy]; ok {
		return t, nil
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return nil, validationError(fmt.Sprintf("invalid proxy %q", proxy))
	}
	t := c.transport.Clone()
	t.Proxy = http.ProxyURL(u)
	c.proxied[proxy] = t
	return t, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := req.Path
	if c.config.BaseURL != "" && !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, validationError(fmt.Sprintf("encode body: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, validationError(fmt.Sprintf("create request: %v", err))
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// encodeBody converts a body value into a reader and content type. Raw
// bytes and strings that hold JSON are sent as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), sniffJSON(v), nil
	case string:
		return strings.NewReader(v), sniffJSON([]byte(v)), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func sniffJSON(b []byte) string {
	if json.Valid(b) {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
