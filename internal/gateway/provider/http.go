package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	commonhttp "interpharma-gateway/internal/common/http"
	"interpharma-gateway/internal/gateway/prompt"
)

// ErrStatus marks a non-2xx provider response.
var ErrStatus = errors.New("provider returned non-2xx status")

var defaultShapes = []Shape{ShapePrompt, ShapeInput, ShapeText, ShapeChat}

// HTTPBackend posts to a single endpoint whose payload contract is unknown.
type HTTPBackend struct {
	client  *commonhttp.Client
	baseURL string
	apiKey  string
	model   string
}

func NewHTTPBackend(client *commonhttp.Client, baseURL, apiKey, model string) *HTTPBackend {
	return &HTTPBackend{
		client:  client,
		baseURL: strings.TrimSpace(baseURL),
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
	}
}

func (b *HTTPBackend) Name() string  { return "http" }
func (b *HTTPBackend) Model() string { return b.model }

// Endpoint is the base URL without query string, safe to log.
func (b *HTTPBackend) Endpoint() string {
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// Shapes puts the chat shape first for chat-completion endpoints, which reject the others.
func (b *HTTPBackend) Shapes() []Shape {
	if strings.HasSuffix(strings.TrimRight(b.Endpoint(), "/"), "/chat/completions") {
		return []Shape{ShapeChat, ShapePrompt, ShapeInput, ShapeText}
	}
	return defaultShapes
}

func (b *HTTPBackend) Send(ctx context.Context, shape Shape, p prompt.Prompt) (interface{}, int, error) {
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}

	resp, err := b.client.PostJSON(ctx, b.baseURL, headers, b.payload(shape, p))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if !resp.OK() {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	// Any 2xx body is accepted; bodies that are not JSON are handed on as text.
	var raw interface{}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return string(resp.Body), resp.StatusCode, nil
	}
	return raw, resp.StatusCode, nil
}

func (b *HTTPBackend) payload(shape Shape, p prompt.Prompt) interface{} {
	switch shape {
	case ShapeInput:
		return map[string]string{"input": p.Text}
	case ShapeText:
		return map[string]string{"text": p.Text}
	case ShapeChat:
		return chatRequest{
			Model: b.model,
			Messages: []chatMessage{
				{Role: "system", Content: p.System},
				{Role: "user", Content: p.User},
			},
		}
	default:
		return map[string]string{"prompt": p.Text}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}
