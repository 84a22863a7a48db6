// Package transport is the JSON-over-HTTP plumbing shared by the generation
// providers: request encoding, status errors, failure classification and the
// resilience wrapper.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

// Observer receives one sample per provider call.
type Observer interface {
	ObserveLLMCall(provider, operation string, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveLLMCall(string, string, time.Duration, error) {}

type Client struct {
	provider   string
	baseURL    string
	header     http.Header
	httpClient *http.Client
	executor   *resilience.Executor
	observer   Observer
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func New(provider, baseURL string, opts ...Option) *Client {
	c := &Client{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     make(http.Header),
		httpClient: &http.Client{Timeout: 180 * time.Second},
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execute runs fn under the resilience executor, records the call and
// marks retryable failures as temporary.
func (c *Client) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, c.provider+"."+operation, fn, Classify)
	}
	c.observer.ObserveLLMCall(c.provider, operation, time.Since(start), err)
	return resilience.Temporary(c.provider+" "+operation, err, Classify)
}

// PostJSON sends payload to path and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return c.SendJSON(ctx, http.MethodPost, path, payload, out, operation)
}

// SendJSON is PostJSON for an arbitrary method. A nil out discards the
// response body.
func (c *Client) SendJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	return c.Execute(ctx, operation, func(ctx context.Context) error {
		req, err := c.NewRequest(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.Do(req, operation)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return DecodeJSON(resp, out, operation)
	})
}

// NewRequest builds a request carrying the client's default headers.
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// Do performs req and turns non-2xx answers into *HTTPStatusError. The
// caller owns the returned body.
func (c *Client) Do(req *http.Request, operation string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", c.provider, operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
			Wait:       parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return resp, nil
}

func DecodeJSON(resp *http.Response, out any, operation string) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
