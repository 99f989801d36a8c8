package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/pkg/protocol"
)

// SSEClient follows the server's change stream.
type SSEClient struct {
	baseURL      string
	httpClient   *http.Client
	reconnectMin time.Duration
	reconnectMax time.Duration
	log          *zap.Logger
}

// NewSSEClient creates a new SSE client.
func NewSSEClient(baseURL string, log *zap.Logger) *SSEClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &SSEClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{}, // no timeout on a stream
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
		log:          log,
	}
}

// Subscribe connects to the event stream and reconnects with backoff until
// ctx is done. The channel is closed on exit.
func (c *SSEClient) Subscribe(ctx context.Context) <-chan protocol.SSEEvent {
	events := make(chan protocol.SSEEvent, 100)
	go c.subscribeLoop(ctx, events)
	return events
}

func (c *SSEClient) subscribeLoop(ctx context.Context, events chan<- protocol.SSEEvent) {
	defer close(events)

	delay := c.reconnectMin
	for {
		connected, err := c.connect(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = c.reconnectMin
		}

		c.log.Warn("event stream interrupted",
			zap.Error(err),
			zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.reconnectMax {
			delay = c.reconnectMax
		}
	}
}

// connect streams one connection. connected reports whether the server
// accepted the stream before it ended.
func (c *SSEClient) connect(ctx context.Context, events chan<- protocol.SSEEvent) (connected bool, err error) {
	url := c.baseURL + "/api/v1/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.log.Info("event stream connected", zap.String("url", url))

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				c.dispatch(ctx, events, eventType, data)
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read: %w", err)
	}
	return true, fmt.Errorf("connection closed")
}

func (c *SSEClient) dispatch(ctx context.Context, events chan<- protocol.SSEEvent, eventType, data string) {
	var ev protocol.SSEEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		c.log.Debug("malformed event", zap.String("data", data), zap.Error(err))
		return
	}
	if ev.Type == "" {
		ev.Type = eventType
	}

	select {
	case events <- ev:
	case <-ctx.Done():
	default:
		c.log.Debug("event dropped, channel full", zap.String("path", ev.Path))
	}
}
