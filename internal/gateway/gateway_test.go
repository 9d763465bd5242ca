package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"interpharma-gateway/internal/common/errors"
	commonhttp "interpharma-gateway/internal/common/http"
	"interpharma-gateway/internal/common/logger"
	"interpharma-gateway/internal/gateway/audit"
	"interpharma-gateway/internal/gateway/cache"
	"interpharma-gateway/internal/gateway/disclaimer"
	"interpharma-gateway/internal/gateway/prompt"
	"interpharma-gateway/internal/gateway/provider"
	"interpharma-gateway/internal/gateway/ratelimit"
	"interpharma-gateway/internal/gateway/safety"
	"interpharma-gateway/internal/models"
)

type countingCaller struct {
	inner Caller
	calls int32
}

func (c *countingCaller) Call(ctx context.Context, p prompt.Prompt) provider.Result {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.Call(ctx, p)
}

func (c *countingCaller) count() int { return int(atomic.LoadInt32(&c.calls)) }

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func mockCaller(t *testing.T, opts ...provider.Option) *countingCaller {
	return &countingCaller{inner: provider.NewClient(nil, logger.NewTestLogger(t), opts...)}
}

func request(t *testing.T, persona models.Persona, message, mode string) Request {
	t.Helper()
	q, err := models.NewQuery(message, mode, "")
	require.NoError(t, err)
	return Request{RequestID: "req-1", ClientID: "10.0.0.1", Persona: persona, Query: q}
}

func TestHandle_BlockedQueryNeverCallsProvider(t *testing.T) {
	caller := mockCaller(t)
	rec := &recordingAudit{}
	g := New(Deps{Provider: caller, Audit: rec, Logger: logger.NewTestLogger(t)})

	resp, err := g.Handle(context.Background(), request(t, models.PersonaPharmaChat, "What should I take for a headache?", ""))
	require.NoError(t, err)

	assert.Equal(t, 0, caller.count())
	assert.False(t, resp.Verdict.Allowed)
	assert.Equal(t, models.CategoryDosageRequest, resp.Verdict.ReasonCategory)
	assert.Equal(t, models.LabelSafety, resp.Answer.ModelLabel)
	assert.True(t, strings.HasPrefix(resp.Answer.PlainText, safety.RefusalText))
	assert.Equal(t, 1, disclaimer.Count(resp.Answer.PlainText))
	assert.Equal(t, []models.State{
		models.StateReceived, models.StateFiltering, models.StateBlocked, models.StateResponded,
	}, resp.Trace)

	require.Len(t, rec.entries, 1)
	assert.True(t, rec.entries[0].Blocked)
	assert.Equal(t, models.LabelSafety, rec.entries[0].ModelLabel)
}

func TestHandle_BlockedStructuredQuery(t *testing.T) {
	caller := mockCaller(t)
	g := New(Deps{Provider: caller})

	resp, err := g.Handle(context.Background(), request(t, models.PersonaMedicalChat, "Can you diagnose my rash?", "Patient-Friendly"))
	require.NoError(t, err)

	assert.Equal(t, 0, caller.count())
	require.NotNil(t, resp.Answer.Sections)
	assert.Equal(t, safety.RefusalText, resp.Answer.Sections.Overview)
	assert.Equal(t, disclaimer.Text, resp.Answer.Disclaimer)
}

func TestHandle_UnconfiguredProviderReturnsMock(t *testing.T) {
	g := New(Deps{Provider: mockCaller(t), Logger: logger.NewTestLogger(t)})

	resp, err := g.Handle(context.Background(), request(t, models.PersonaPharmaChat, "What is amoxicillin?", ""))
	require.NoError(t, err)

	assert.Equal(t, models.LabelMock, resp.Answer.ModelLabel)
	assert.Contains(t, resp.Answer.PlainText, provider.MockPrefix)
	assert.Contains(t, resp.Answer.PlainText, "User message: What is amoxicillin?")
	assert.Equal(t, 1, disclaimer.Count(resp.Answer.PlainText))
	assert.Equal(t, []models.State{
		models.StateReceived, models.StateFiltering, models.StatePrompting, models.StateCalling,
		models.StateNormalizing, models.StateFinalizing, models.StateResponded,
	}, resp.Trace)
}

func TestHandle_StructuredMock(t *testing.T) {
	g := New(Deps{Provider: mockCaller(t, provider.WithOfflineMock(true))})

	resp, err := g.Handle(context.Background(), request(t, models.PersonaMedicalChat, "Explain Schedule H", "Pharmacist"))
	require.NoError(t, err)

	require.NotNil(t, resp.Answer.Sections)
	assert.Equal(t, models.KindStructured, resp.Answer.Kind)
	assert.Equal(t, "Sample response (mock): Explain Schedule H", resp.Answer.Sections.Overview)
	assert.Equal(t, "This is a mock key points summary for mode Pharmacist", resp.Answer.Sections.KeyPoints)
	assert.Equal(t, "Mock safety notes: always consult a clinician for diagnosis or dosing.", resp.Answer.Sections.SafetyNotes)
	assert.Equal(t, disclaimer.Text, resp.Answer.Disclaimer)
	assert.Empty(t, resp.Answer.PlainText)
}

func TestHandle_RateLimitAfterThirtyRequests(t *testing.T) {
	caller := mockCaller(t)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger.NewNoOpLogger())
	g := New(Deps{Provider: caller, Limiter: limiter})

	req := request(t, models.PersonaPharmaChat, "What is paracetamol?", "")
	for i := 1; i <= 30; i++ {
		resp, err := g.Handle(context.Background(), req)
		require.NoError(t, err)
		require.False(t, resp.RateLimited, "request %d", i)
	}

	resp, err := g.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.RateLimited)
	assert.Greater(t, resp.RetryAfter, time.Duration(0))
	assert.Equal(t, []models.State{models.StateRateLimited}, resp.Trace)
	assert.Equal(t, 30, caller.count())

	other := req
	other.ClientID = "10.0.0.2"
	resp, err = g.Handle(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, resp.RateLimited)
}

func TestHandle_ProviderTimeoutDegradesToMock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	backend := provider.NewHTTPBackend(commonhttp.NewClient(), ts.URL, "key", "model")
	client := provider.NewClient(backend, logger.NewTestLogger(t), provider.WithTimeout(20*time.Millisecond))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	g := New(Deps{Provider: client, Cache: cache.NewRedisCache(rdb, 30*time.Second, "answer:")})

	resp, err := g.Handle(context.Background(), request(t, models.PersonaDrugInteraction, "warfarin with aspirin", ""))
	require.NoError(t, err)

	assert.Equal(t, models.LabelMock, resp.Answer.ModelLabel)
	assert.True(t, strings.HasPrefix(resp.Answer.PlainText, provider.MockErrorPrefix))
	assert.Equal(t, 1, disclaimer.Count(resp.Answer.PlainText))
	require.Len(t, resp.Attempts, 4)
	for _, a := range resp.Attempts {
		assert.Equal(t, provider.OutcomeTimeout, a.Outcome)
	}
	assert.Empty(t, mr.Keys(), "fallback answers are not cached")
}

func TestHandle_CacheHit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"overview\":\"Metformin is a biguanide.\",\"key_points\":\"First-line in T2D\"}"}}]}`))
	}))
	defer ts.Close()

	caller := &countingCaller{inner: provider.NewClient(
		provider.NewHTTPBackend(commonhttp.NewClient(), ts.URL, "key", "model"), logger.NewNoOpLogger())}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	g := New(Deps{Provider: caller, Cache: cache.NewRedisCache(rdb, 30*time.Second, "answer:")})
	req := request(t, models.PersonaMedicalChat, "Explain metformin", "Student")

	first, err := g.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Answer.Cached)
	assert.Equal(t, models.LabelProvider, first.Answer.ModelLabel)
	assert.Equal(t, "Metformin is a biguanide.", first.Answer.Sections.Overview)
	assert.Equal(t, "First-line in T2D", first.Answer.Sections.KeyPoints)

	second, err := g.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Answer.Cached)
	assert.Equal(t, first.Answer.Sections, second.Answer.Sections)
	assert.Equal(t, 1, caller.count())
	assert.Equal(t, []models.State{
		models.StateReceived, models.StateFiltering, models.StatePrompting, models.StateFinalizing, models.StateResponded,
	}, second.Trace)
}

func TestHandle_UnknownPersona(t *testing.T) {
	_, err := New(Deps{}).Handle(context.Background(), request(t, models.Persona("poetry"), "hello there", ""))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.AsStandard(err).Code)
}

func TestFinalize(t *testing.T) {
	plain := Finalize(models.NormalizedAnswer{Kind: models.KindPlain, PlainText: "answer\n\n" + disclaimer.Text}, models.LabelProvider)
	assert.Equal(t, "answer\n\n"+disclaimer.Text, plain.PlainText)
	assert.Nil(t, plain.Sections)

	structured := Finalize(models.NormalizedAnswer{
		Kind:     models.KindStructured,
		Sections: &models.Sections{Overview: "Overview.\n\n" + disclaimer.Text, ReferToDoctor: disclaimer.Text},
	}, models.LabelProvider)
	assert.Equal(t, "Overview.", structured.Sections.Overview)
	assert.Empty(t, structured.Sections.ReferToDoctor)
	assert.Equal(t, disclaimer.Text, structured.Disclaimer)

	empty := Finalize(models.NormalizedAnswer{Kind: models.KindStructured}, models.LabelMock)
	require.NotNil(t, empty.Sections)
}

func TestHandle_BlocksUnsafeReportDetails(t *testing.T) {
	caller := mockCaller(t)
	g := New(Deps{Provider: caller})

	q, err := models.NewQuery("ibuprofen", "", "")
	require.NoError(t, err)
	q = q.WithReport(models.ReportDetails{Disease: "diagnose my rash"})

	resp, err := g.Handle(context.Background(), Request{RequestID: "req-r", ClientID: "10.0.0.2", Persona: models.PersonaReport, Query: q})
	require.NoError(t, err)

	assert.Equal(t, 0, caller.count())
	assert.False(t, resp.Verdict.Allowed)
	assert.Equal(t, models.CategoryDiagnosis, resp.Verdict.ReasonCategory)
	assert.Equal(t, models.LabelSafety, resp.Answer.ModelLabel)
}

func TestHandle_LogsErrorCodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"not a field anyone reads"}`))
	}))
	defer ts.Close()

	core, logs := observer.New(zap.DebugLevel)
	log := logger.NewZapAdapter(zap.New(core))
	client := provider.NewClient(provider.NewHTTPBackend(commonhttp.NewClient(), ts.URL, "key", "model"), log)
	g := New(Deps{Provider: client, Logger: log})

	_, err := g.Handle(context.Background(), request(t, models.PersonaPharmaChat, "Should I take two tablets?", ""))
	require.NoError(t, err)
	blocked := logs.FilterMessage("query blocked by safety filter").All()
	require.Len(t, blocked, 1)
	assert.Contains(t, blocked[0].ContextMap()["error"], "POLICY_REJECTED")

	resp, err := g.Handle(context.Background(), request(t, models.PersonaPharmaChat, "What is ibuprofen?", ""))
	require.NoError(t, err)
	assert.Equal(t, models.LabelProvider, resp.Answer.ModelLabel)

	degraded := logs.FilterMessage("provider output degraded").All()
	require.Len(t, degraded, 1)
	assert.Equal(t, "MALFORMED_PROVIDER_OUTPUT", degraded[0].ContextMap()["errorCode"])
	assert.Equal(t, "dump", degraded[0].ContextMap()["source"])
}
