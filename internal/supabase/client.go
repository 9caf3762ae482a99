// Package supabase is a client for the hosted BaaS the platform delegates
// persistence, auth and file storage to. Tables are reached over PostgREST,
// auth over the GoTrue endpoints, files over the storage API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingURL    = errors.New("supabase URL is required")
	ErrMissingAPIKey = errors.New("supabase API key is required")
)

// APIError is a non-2xx response from the remote store.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("supabase: status %d", e.StatusCode)
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Retry      RetryConfig
}

// Client talks to the remote store. All requests carry the project API key;
// requests on behalf of a signed-in user additionally carry that user's
// access token as the bearer credential.
type Client struct {
	baseURL    string
	apiKey     string
	userToken  string
	httpClient *http.Client
	retry      RetryConfig
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		retry:      retry,
	}, nil
}

// WithToken returns a shallow copy of the client that authenticates as the
// user holding the given access token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.userToken = token
	return &cp
}

// From starts a query against a table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table}
}

// RPC calls a Postgres function exposed through PostgREST.
func (c *Client) RPC(ctx context.Context, fn string, params, out any) error {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal rpc params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rest/v1/rpc/"+fn, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if c.userToken != "" {
		token = c.userToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// do sends the request with bounded retry and decodes a JSON body into out
// when out is non-nil. Requests with a body are replayed from a buffered
// copy on each attempt.
func (c *Client) do(req *http.Request, out any) error {
	c.setHeaders(req)

	var bodyCopy []byte
	if req.Body != nil {
		var err error
		bodyCopy, err = io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		req.Body.Close()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return req.Context().Err()
			case <-time.After(c.retry.backoff(attempt)):
			}
		}
		if bodyCopy != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("supabase request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: parseErrorMessage(body)}
			if !c.retry.retryable(resp.StatusCode) {
				return apiErr
			}
			lastErr = apiErr
			continue
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func parseErrorMessage(body []byte) string {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		return errResp.Error
	}
	return ""
}
