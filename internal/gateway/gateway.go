// Package gateway runs one query through rate limiting, the safety filter,
// prompt rendering, the provider call, normalization and the disclaimer.
package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"interpharma-gateway/internal/common/errors"
	"interpharma-gateway/internal/common/logger"
	"interpharma-gateway/internal/common/metrics"
	"interpharma-gateway/internal/common/observability"
	"interpharma-gateway/internal/gateway/audit"
	"interpharma-gateway/internal/gateway/cache"
	"interpharma-gateway/internal/gateway/disclaimer"
	"interpharma-gateway/internal/gateway/normalize"
	"interpharma-gateway/internal/gateway/prompt"
	"interpharma-gateway/internal/gateway/provider"
	"interpharma-gateway/internal/gateway/ratelimit"
	"interpharma-gateway/internal/gateway/safety"
	"interpharma-gateway/internal/models"
)

type Classifier interface {
	Classify(text string) models.SafetyVerdict
}

type PromptBuilder interface {
	Build(q models.Query, persona models.Persona) (prompt.Prompt, error)
}

type Caller interface {
	Call(ctx context.Context, p prompt.Prompt) provider.Result
}

type Limiter interface {
	Allow(ctx context.Context, clientID string) ratelimit.Decision
}

// Deps wires the gateway. Limiter, Cache, Audit and Observability are optional.
type Deps struct {
	Filter        Classifier
	Builder       PromptBuilder
	Provider      Caller
	Limiter       Limiter
	Cache         cache.Cache
	Audit         audit.Repository
	Logger        logger.Logger
	Observability *observability.Observability
}

type Request struct {
	RequestID string
	ClientID  string
	Persona   models.Persona
	Query     models.Query
}

// Response always carries an Answer unless RateLimited is set.
type Response struct {
	Answer      models.FinalAnswer
	Verdict     models.SafetyVerdict
	RateLimited bool
	RetryAfter  time.Duration
	Trace       []models.State
	Attempts    []provider.Attempt
}

type Gateway struct {
	deps Deps
}

const auditTimeout = 2 * time.Second

func New(deps Deps) *Gateway {
	if deps.Filter == nil {
		deps.Filter = safety.NewFilter()
	}
	if deps.Builder == nil {
		deps.Builder = prompt.NewBuilder()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Provider == nil {
		deps.Provider = provider.NewClient(nil, deps.Logger)
	}
	return &Gateway{deps: deps}
}

// Handle answers req. The only errors are invalid input and internal faults;
// provider trouble is absorbed into a mock answer.
func (g *Gateway) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	if !req.Persona.Valid() {
		return Response{}, errors.NewInvalidInputError("unknown persona " + string(req.Persona))
	}

	ctx, span := g.deps.Observability.StartSpan(ctx, "gateway.handle",
		attribute.String("persona", string(req.Persona)),
		attribute.String("mode", string(req.Query.Mode)),
	)
	defer span.End()

	log := g.deps.Logger.With(map[string]interface{}{
		"requestId": req.RequestID,
		"persona":   string(req.Persona),
		"mode":      string(req.Query.Mode),
		"language":  req.Query.Language,
	})

	var resp Response
	if g.deps.Limiter != nil {
		d := g.deps.Limiter.Allow(ctx, req.ClientID)
		if !d.Allowed {
			resp.RateLimited = true
			resp.RetryAfter = d.RetryAfter
			resp.Trace = []models.State{models.StateRateLimited}
			metrics.QueriesRateLimited.Inc()
			log.Warn("rate limit exceeded", map[string]interface{}{
				"clientId":   req.ClientID,
				"count":      d.Count,
				"retryAfter": d.RetryAfterSeconds(),
			})
			return resp, nil
		}
	}

	resp.Trace = append(resp.Trace, models.StateReceived, models.StateFiltering)
	resp.Verdict = g.deps.Filter.Classify(req.Query.ScreenText())
	if !resp.Verdict.Allowed {
		resp.Trace = append(resp.Trace, models.StateBlocked, models.StateResponded)
		resp.Answer = refusal(req.Persona.Kind())
		metrics.QueriesBlocked.WithLabelValues(string(resp.Verdict.ReasonCategory)).Inc()
		log.Info("query blocked by safety filter", map[string]interface{}{
			"category": string(resp.Verdict.ReasonCategory),
			"error":    errors.NewPolicyRejectedError(string(resp.Verdict.ReasonCategory)).Error(),
		})
		g.finish(ctx, log, req, resp, start)
		return resp, nil
	}

	key := cache.Key(req.Persona, req.Query)
	if cached := g.lookup(ctx, log, key); cached != nil {
		resp.Trace = append(resp.Trace, models.StatePrompting, models.StateFinalizing, models.StateResponded)
		resp.Answer = *cached
		resp.Answer.Cached = true
		g.finish(ctx, log, req, resp, start)
		return resp, nil
	}

	resp.Trace = append(resp.Trace, models.StatePrompting)
	p, err := g.deps.Builder.Build(req.Query, req.Persona)
	if err != nil {
		return Response{}, errors.NewInternalError(err)
	}

	resp.Trace = append(resp.Trace, models.StateCalling)
	result := g.deps.Provider.Call(ctx, p)
	resp.Attempts = result.Attempts

	resp.Trace = append(resp.Trace, models.StateNormalizing)
	normalized, diag := normalize.Inspect(result.Raw, p.Kind)
	if diag.Degraded && result.Label == models.LabelProvider {
		stdErr := errors.NewMalformedProviderOutputError(diag.Reason)
		log.Warn("provider output degraded", map[string]interface{}{
			"error":     stdErr.Error(),
			"errorCode": string(stdErr.Code),
			"source":    diag.Source,
		})
	}

	resp.Trace = append(resp.Trace, models.StateFinalizing)
	resp.Answer = Finalize(normalized, result.Label)
	resp.Trace = append(resp.Trace, models.StateResponded)

	if !result.Fallback {
		if err := g.deps.Cache.Set(ctx, key, &resp.Answer); err != nil {
			log.Warn("answer cache write failed", map[string]interface{}{
				"error": errors.NewCacheUnavailableError(err).Error(),
			})
		}
	}

	g.finish(ctx, log, req, resp, start)
	return resp, nil
}

// Finalize attaches the disclaimer: inside the text for plain answers, as a
// sibling field for structured ones.
func Finalize(n models.NormalizedAnswer, label models.ModelLabel) models.FinalAnswer {
	out := models.FinalAnswer{NormalizedAnswer: n, ModelLabel: label}
	if n.Kind == models.KindStructured {
		s := models.Sections{}
		if n.Sections != nil {
			s = *n.Sections
		}
		s.Overview = disclaimer.Strip(s.Overview)
		s.KeyPoints = disclaimer.Strip(s.KeyPoints)
		s.SafetyNotes = disclaimer.Strip(s.SafetyNotes)
		s.CounselingTips = disclaimer.Strip(s.CounselingTips)
		s.ReferToDoctor = disclaimer.Strip(s.ReferToDoctor)
		out.Sections = &s
		out.PlainText = ""
		out.Disclaimer = disclaimer.Text
		return out
	}
	out.PlainText = disclaimer.Ensure(n.PlainText)
	out.Sections = nil
	return out
}

func refusal(kind models.AnswerKind) models.FinalAnswer {
	if kind == models.KindStructured {
		return Finalize(models.NormalizedAnswer{
			Kind:     models.KindStructured,
			Sections: &models.Sections{Overview: safety.RefusalText},
		}, models.LabelSafety)
	}
	return Finalize(models.NormalizedAnswer{Kind: models.KindPlain, PlainText: safety.RefusalText}, models.LabelSafety)
}

func (g *Gateway) lookup(ctx context.Context, log logger.Logger, key string) *models.FinalAnswer {
	cached, err := g.deps.Cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn("answer cache read failed", map[string]interface{}{
			"error": errors.NewCacheUnavailableError(err).Error(),
		})
		return nil
	case cached == nil:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	default:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached
	}
}

func (g *Gateway) finish(ctx context.Context, log logger.Logger, req Request, resp Response, start time.Time) {
	elapsed := time.Since(start)
	label := string(resp.Answer.ModelLabel)

	metrics.QueriesTotal.WithLabelValues(string(req.Persona), label).Inc()
	metrics.QueryDuration.WithLabelValues(string(req.Persona)).Observe(elapsed.Seconds())
	g.deps.Observability.RecordQuery(ctx, string(req.Persona), label, elapsed)

	trace := make([]string, len(resp.Trace))
	for i, s := range resp.Trace {
		trace[i] = string(s)
	}
	log.Info("query answered", map[string]interface{}{
		"model":         label,
		"cached":        resp.Answer.Cached,
		"attempts":      len(resp.Attempts),
		"trace":         trace,
		"messageLength": len(req.Query.Text),
		"durationMs":    elapsed.Milliseconds(),
	})

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	err := g.deps.Audit.Record(auditCtx, audit.Entry{
		RequestID:     req.RequestID,
		ClientID:      req.ClientID,
		Persona:       req.Persona,
		Mode:          req.Query.Mode,
		Language:      req.Query.Language,
		Category:      resp.Verdict.ReasonCategory,
		ModelLabel:    resp.Answer.ModelLabel,
		Blocked:       !resp.Verdict.Allowed,
		MessageLength: len(req.Query.Text),
		Duration:      elapsed,
	})
	if err != nil {
		log.Warn("audit write failed", map[string]interface{}{
			"error": errors.NewAuditWriteFailedError(err).Error(),
		})
	}
}
