package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/logger"
)

// Client sends completions through a Dialect over httpclient.
type Client struct {
	http    *httpclient.Client
	dialect Dialect
	cfg     Config
}

// New creates a Client from cfg.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := GetDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	hc, err := httpclient.New(httpclient.Config{
		Name:    dialect.Name() + "-llm",
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("llm: create http client: %w", err)
	}
	return &Client{http: hc, dialect: dialect, cfg: cfg}, nil
}

// Dialect returns the dialect in use.
func (c *Client) Dialect() Dialect { return c.dialect }

// Complete sends req authenticated with apiKey and returns the answer.
func (c *Client) Complete(ctx context.Context, apiKey string, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.Temperature == 0 {
		req.Temperature = c.cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	body, err := c.dialect.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    c.dialect.ChatPath(),
		Headers: c.dialect.AuthHeaders(apiKey),
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}
	out, err := c.dialect.ParseResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return out, nil
}
