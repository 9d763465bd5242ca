// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

type Client struct {
	httpClient *http.Client
}

// NewClient builds a client without an overall timeout; callers bound each
// request through its context instead.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

func NewClientWith(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// PostJSON marshals payload, posts it with the given headers and reads the body.
// A non-2xx status is not an error.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("read body: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// WithTimeout returns a derived context bounded by d, or ctx itself when d <= 0.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
