// Package provider calls the configured LLM backend. It never returns an
// error: an unconfigured or failing backend yields a labelled mock response.
package provider

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"interpharma-gateway/internal/common/config"
	"interpharma-gateway/internal/common/errors"
	commonhttp "interpharma-gateway/internal/common/http"
	"interpharma-gateway/internal/common/logger"
	"interpharma-gateway/internal/common/metrics"
	"interpharma-gateway/internal/common/observability"
	"interpharma-gateway/internal/gateway/prompt"
	"interpharma-gateway/internal/models"
)

// Shape is one request payload layout tried against the provider.
type Shape string

const (
	ShapePrompt Shape = "prompt"
	ShapeInput  Shape = "input"
	ShapeText   Shape = "text"
	ShapeChat   Shape = "chat-messages"
	ShapeGemini Shape = "gemini"
)

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTransportError Outcome = "transport-error"
	OutcomeTimeout        Outcome = "timeout"
)

const (
	MockPrefix      = "MOCKED LLM RESPONSE:\n"
	MockErrorPrefix = "MOCKED LLM RESPONSE (provider error):\n"

	DefaultTimeout = 20 * time.Second
)

// Attempt records one outbound call.
type Attempt struct {
	Shape    Shape
	Endpoint string
	Outcome  Outcome
	Status   int
	Duration time.Duration
	Err      error
}

// Result is what the orchestrator normalizes. Fallback is set when every
// attempt failed and Raw is the provider-error mock.
type Result struct {
	Raw      interface{}
	Label    models.ModelLabel
	Attempts []Attempt
	Fallback bool
}

// Backend delivers a prompt in one payload shape. status is 0 when no HTTP
// response was received.
type Backend interface {
	Name() string
	Endpoint() string
	Model() string
	Shapes() []Shape
	Send(ctx context.Context, shape Shape, p prompt.Prompt) (raw interface{}, status int, err error)
}

type Client struct {
	backend Backend
	mock    bool
	timeout time.Duration
	log     logger.Logger
	obs     *observability.Observability
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOfflineMock keeps every call offline: structured prompts get the canned
// sample, plain prompts the deterministic mock text.
func WithOfflineMock(enabled bool) Option {
	return func(c *Client) { c.mock = enabled }
}

func WithObservability(obs *observability.Observability) Option {
	return func(c *Client) { c.obs = obs }
}

// NewClient wraps backend. A nil backend means no provider is configured.
func NewClient(backend Backend, log logger.Logger, opts ...Option) *Client {
	c := &Client{backend: backend, timeout: DefaultTimeout, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig picks the backend for cfg.Kind, or none when credentials are missing.
func NewFromConfig(cfg config.ProviderConfig, log logger.Logger, opts ...Option) *Client {
	opts = append([]Option{
		WithTimeout(config.GetDuration(cfg.Timeout)),
		WithOfflineMock(cfg.Mock),
	}, opts...)

	if !cfg.Configured() {
		log.Info("no LLM provider configured, using mock responder", map[string]interface{}{
			"kind": cfg.Kind,
		})
		return NewClient(nil, log, opts...)
	}

	var backend Backend
	switch cfg.Kind {
	case config.ProviderKindGemini:
		backend = NewGeminiBackend(cfg.APIKey, cfg.Model)
	default:
		backend = NewHTTPBackend(commonhttp.NewClient(), cfg.BaseURL, cfg.APIKey, cfg.Model)
	}
	return NewClient(backend, log, opts...)
}

// Configured reports whether a real backend is wired.
func (c *Client) Configured() bool { return c.backend != nil }

// Call tries each backend shape in order and returns the first success.
func (c *Client) Call(ctx context.Context, p prompt.Prompt) Result {
	if c.mock && p.Kind == models.KindStructured {
		return Result{Raw: structuredMock(p), Label: models.LabelMock}
	}
	if c.mock || c.backend == nil {
		return Result{Raw: MockPrefix + p.Text, Label: models.LabelMock}
	}

	var attempts []Attempt
	for _, shape := range c.backend.Shapes() {
		if ctx.Err() != nil {
			break
		}

		raw, attempt := c.attempt(ctx, shape, p)
		attempts = append(attempts, attempt)
		if attempt.Outcome == OutcomeSuccess {
			return Result{Raw: raw, Label: models.LabelProvider, Attempts: attempts}
		}
	}

	fields := map[string]interface{}{
		"backend":  c.backend.Name(),
		"attempts": len(attempts),
		"canceled": ctx.Err() != nil,
	}
	if n := len(attempts); n > 0 {
		fields["error"] = attemptError(attempts[n-1].Shape, attempts[n-1].Outcome, attempts[n-1].Err).Error()
	}
	c.log.Warn("all provider attempts failed, using fallback", fields)
	return Result{
		Raw:      MockErrorPrefix + p.Text,
		Label:    models.LabelMock,
		Attempts: attempts,
		Fallback: true,
	}
}

func (c *Client) attempt(ctx context.Context, shape Shape, p prompt.Prompt) (interface{}, Attempt) {
	ctx, span := c.obs.StartSpan(ctx, "provider.attempt",
		attribute.String("provider.backend", c.backend.Name()),
		attribute.String("provider.shape", string(shape)),
		attribute.String("provider.model", c.backend.Model()),
	)
	defer span.End()

	attemptCtx, cancel := commonhttp.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, status, err := c.backend.Send(attemptCtx, shape, p)
	a := Attempt{
		Shape:    shape,
		Endpoint: c.backend.Endpoint(),
		Status:   status,
		Duration: time.Since(start),
		Err:      err,
		Outcome:  classify(attemptCtx, err),
	}

	fields := map[string]interface{}{
		"backend":      c.backend.Name(),
		"model":        c.backend.Model(),
		"shape":        string(shape),
		"status":       status,
		"outcome":      string(a.Outcome),
		"durationMs":   a.Duration.Milliseconds(),
		"promptLength": len(p.Text),
		"userLength":   len(p.User),
	}
	if err != nil {
		stdErr := attemptError(shape, a.Outcome, err)
		fields["error"] = logger.Truncate(stdErr.Error()+": "+stdErr.Details, 200)
		fields["errorCode"] = string(stdErr.Code)
		fields["retryable"] = errors.IsRetryableErrorCode(stdErr.Code)
		c.log.Warn("provider attempt failed", fields)
		span.SetStatus(codes.Error, string(a.Outcome))
	} else {
		c.log.Info("provider attempt succeeded", fields)
	}
	span.SetAttributes(attribute.Int("http.status_code", status), attribute.String("provider.outcome", string(a.Outcome)))

	metrics.ProviderAttempts.WithLabelValues(string(shape), string(a.Outcome)).Inc()
	c.obs.RecordProviderAttempt(ctx, string(shape), string(a.Outcome))
	return raw, a
}

// attemptError maps a failed attempt onto the gateway error taxonomy.
func attemptError(shape Shape, outcome Outcome, err error) *errors.StandardError {
	if outcome == OutcomeTimeout {
		return errors.NewProviderTimeoutError(string(shape))
	}
	if err == nil {
		err = stderrors.New("no response")
	}
	return errors.NewProviderUnavailableError(err)
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeTransportError
	}
}

func structuredMock(p prompt.Prompt) map[string]interface{} {
	return map[string]interface{}{
		"overview":   "Sample response (mock): " + p.User,
		"keyPoints":  "This is a mock key points summary for mode " + string(p.Mode),
		"safety":     "Mock safety notes: always consult a clinician for diagnosis or dosing.",
		"counseling": "Mock counseling tips: explain administration, storage, and when to seek help.",
		"refer":      "Refer for severe or life-threatening symptoms.",
	}
}
