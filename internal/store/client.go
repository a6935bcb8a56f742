// Package store is a minimal REST client for an Elasticsearch-compatible
// document store: scroll-based search and NDJSON bulk writes.
package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config contains store connection settings.
type Config struct {
	URL                string        `yaml:"url" mapstructure:"url"`
	Username           string        `yaml:"user" mapstructure:"user"`
	Password           string        `yaml:"password" mapstructure:"password"`
	APIKey             string        `yaml:"api_key" mapstructure:"api_key"`
	Bearer             string        `yaml:"bearer" mapstructure:"bearer"`
	CACert             string        `yaml:"ca_cert" mapstructure:"ca_cert"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit          float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, 0 = unlimited
}

// Client talks to the document store. It performs no retries; any transport
// failure or non-2xx response is surfaced to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authHeader string // "ApiKey ..." or "Bearer ...", empty for basic/none
	username   string
	password   string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a store client from config.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		username: cfg.Username,
		password: cfg.Password,
		logger:   logger,
	}

	switch {
	case cfg.APIKey != "":
		client.authHeader = "ApiKey " + cfg.APIKey
	case cfg.Bearer != "":
		client.authHeader = "Bearer " + cfg.Bearer
	}

	if cfg.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return client, nil
}

// maxErrorBody bounds how much of an error response is carried in the error.
const maxErrorBody = 4000

// do issues one request and returns the response body. Any non-2xx status is
// an error carrying the status and a truncated response body.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read store response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("store returned HTTP %d for %s %s: %s",
			resp.StatusCode, method, path, string(snippet))
	}

	return data, nil
}

// Ping checks that the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/", "", nil)
	return err
}

// Bulk submits a newline-delimited JSON body to the bulk endpoint. A non-2xx
// response is an error; a 2xx response is decoded and returned as-is, item
// errors included.
func (c *Client) Bulk(ctx context.Context, body []byte) (*BulkResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", body)
	if err != nil {
		return nil, err
	}

	var resp BulkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	return &resp, nil
}
