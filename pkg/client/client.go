// Package client talks to a treedesk server. Client implements the
// workspace collaborator over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
	"github.com/sly67/treedesk/pkg/retry"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client is an HTTP client for the files and content API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger

	mu     sync.RWMutex
	online bool
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryConfig applies to idempotent reads only. Mutations are sent once.
	RetryConfig retry.Config
	Logger      *zap.Logger
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		log:         cfg.Logger,
		online:      true,
	}
}

// IsOnline reports whether the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("server is back online", zap.String("url", c.baseURL))
		} else {
			c.log.Warn("server is offline", zap.String("url", c.baseURL))
		}
	}
	c.online = online
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return retry.Do(ctx, retry.Once(), func() error {
		var health protocol.HealthResponse
		_, err := c.send(ctx, http.MethodGet, "/health", nil, nil, &health)
		return err
	})
}

// ListDirectory fetches the entries of path.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]*models.Node, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() ([]*models.Node, error) {
		var entries protocol.ListResponse
		if _, err := c.send(ctx, http.MethodGet, "/api/files", url.Values{"path": {path}}, nil, &entries); err != nil {
			return nil, err
		}
		return models.NodesFromEntries(entries), nil
	})
}

// CreateEntry creates an empty file or a directory.
func (c *Client) CreateEntry(ctx context.Context, parentPath, name string, kind models.Kind) error {
	return retry.Do(ctx, retry.Once(), func() error {
		_, err := c.send(ctx, http.MethodPost, "/api/files", nil,
			protocol.CreateRequest{Path: parentPath, Name: name, Type: kind}, nil)
		return err
	})
}

// RenameEntry renames an entry within parentPath.
func (c *Client) RenameEntry(ctx context.Context, parentPath, oldName, newName string) error {
	return retry.Do(ctx, retry.Once(), func() error {
		_, err := c.send(ctx, http.MethodPatch, "/api/files", nil,
			protocol.RenameRequest{Path: parentPath, OldName: oldName, NewName: newName}, nil)
		return err
	})
}

// DeleteEntry removes an entry, recursively for directories.
func (c *Client) DeleteEntry(ctx context.Context, parentPath, name string) error {
	return retry.Do(ctx, retry.Once(), func() error {
		_, err := c.send(ctx, http.MethodDelete, "/api/files", nil,
			protocol.DeleteRequest{Path: parentPath, Name: name}, nil)
		return err
	})
}

// ReadFileContent downloads a file.
func (c *Client) ReadFileContent(ctx context.Context, path, name string) ([]byte, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() ([]byte, error) {
		return c.send(ctx, http.MethodGet, "/api/content", url.Values{"path": {path}, "name": {name}}, nil, nil)
	})
}

// WriteFileContent uploads a file, creating it if needed.
func (c *Client) WriteFileContent(ctx context.Context, path, name string, data []byte) error {
	return retry.Do(ctx, retry.Once(), func() error {
		_, err := c.send(ctx, http.MethodPost, "/api/content", nil,
			protocol.WriteContentRequest{Path: path, Name: name, Data: data}, nil)
		return err
	})
}

// send performs one request. A JSON body is encoded from in; a 2xx body is
// decoded into out when out is non-nil, otherwise returned raw. Transport
// failures and gateway errors come back marked retryable.
func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, in, out any) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return nil, retry.Retryable(err)
	}
	defer resp.Body.Close()
	c.setOnline(true)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp protocol.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Details = errResp.Details
		}
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("error", apiErr.Message))
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, retry.Retryable(apiErr)
		}
		return nil, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}
