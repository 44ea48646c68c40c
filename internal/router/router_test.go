package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/ads"
	"github.com/DocExplain/DocExplain-app/internal/drafting"
	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAdapter struct{ name string }

func (e echoAdapter) Name() string    { return e.name }
func (e echoAdapter) Available() bool { return true }

func (e echoAdapter) Invoke(ctx context.Context, call provider.Call) (string, error) {
	if call.Schema != nil && call.Schema.Properties["draft"] != nil {
		return `{"draft":"Dear landlord,\nI dispute the increase.","disclaimer":"Check before sending."}`, nil
	}
	return `{"summary":"Rent increase","keyPoints":["+5%"],"category":"housing","isLegible":true}`, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWithToken(t, "")
}

func newServerWithToken(t *testing.T, entitlementToken string) *httptest.Server {
	t.Helper()
	logger := utils.NopLogger()
	m := metrics.New()

	policy := orchestrator.NewPolicy(echoAdapter{"gemini-2.0-flash"}, echoAdapter{"gpt-4o-mini"}, orchestrator.Config{}, logger, m)
	gate := quota.NewGate(quota.NewMemoryStore(), quota.Config{Location: time.UTC}, m)
	drafter := services.NewDrafter(policy, prompt.NewBuilder())

	svc := Services{
		Analysis: services.NewAnalysisService(policy, nil, gate, nil, storage.NewMemoryArchive(), logger),
		Draft:    services.NewDraftService(drafter, drafting.NewSessionStore(drafter, prompt.DefaultLexicon(), time.Hour), logger),
		Quota:    services.NewQuotaService(gate, ads.NewRegistry(gate, ads.Config{}, m), 0, logger),
	}
	srv := httptest.NewServer(NewRouter(svc, Options{
		AllowedOrigins:   []string{"*"},
		MaxBodySize:      1 << 20,
		Metrics:          m,
		EntitlementToken: entitlementToken,
	}, logger))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_PreflightAndHealth(t *testing.T) {
	srv := newServer(t)

	for _, path := range []string{"/analyze", "/api/analyze", "/api/draft"} {
		resp := do(t, http.MethodOptions, srv.URL+path, "", map[string]string{"Origin": "https://app.example"})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	}

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_AnalyzeWithQuota(t *testing.T) {
	srv := newServer(t)
	headers := map[string]string{"X-Device-ID": "dev-1", "Content-Type": "application/json"}
	body := `{"contextAndText":"Your rent rises by 5%","fileName":"rent.txt","lang":"English"}`

	for i := 0; i < quota.FreeDailyLimit; i++ {
		resp := do(t, http.MethodPost, srv.URL+"/api/analyze", body, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "gpt-4o-mini", resp.Header.Get("X-Model-Used"))
	}

	resp := do(t, http.MethodPost, srv.URL+"/analyze", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	var refusal map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refusal))
	assert.Equal(t, "at_limit", refusal["decision"])

	resp = do(t, http.MethodGet, srv.URL+"/quota/dev-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status services.QuotaStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 3, status.State.DailyUsageCount)
	assert.Zero(t, status.Remaining)

	resp = do(t, http.MethodPost, srv.URL+"/analyze", `{"contextAndText":"","lang":"English"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_DraftAndSessions(t *testing.T) {
	srv := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/draft",
		`{"context":"Rent notice","tone":"Firm","template":"Dispute","lang":"English"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gpt-4o-mini", resp.Header.Get("X-Model-Used"))

	resp = do(t, http.MethodPost, srv.URL+"/api/draft/sessions", `{"context":"Rent notice","lang":"English"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess services.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	require.NotEmpty(t, sess.ID)

	resp = do(t, http.MethodPost, srv.URL+"/api/draft/sessions/"+sess.ID+"/messages", `{"template":"Dispute"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var turn services.Turn
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&turn))
	assert.Equal(t, drafting.ModeGenerate, turn.Mode)
	assert.Contains(t, turn.Session.CurrentDraft, "I dispute the increase")

	resp = do(t, http.MethodDelete, srv.URL+"/draft/sessions/"+sess.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/draft/sessions/"+sess.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_MetricsAndUnknownRoutes(t *testing.T) {
	srv := newServer(t)

	do(t, http.MethodGet, srv.URL+"/health", "", nil)
	resp := do(t, http.MethodGet, srv.URL+"/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docexplain_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRouter_ProRequiresEntitlementToken(t *testing.T) {
	body := `{"isPro":true}`
	headers := map[string]string{"Content-Type": "application/json"}

	closed := newServer(t)
	resp := do(t, http.MethodPut, closed.URL+"/quota/dev-1/pro", body, headers)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	srv := newServerWithToken(t, "purchase-secret")
	resp = do(t, http.MethodPut, srv.URL+"/api/quota/dev-1/pro", body, headers)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/api/quota/dev-1/pro", body, map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer purchase-secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/quota/dev-1", "", nil)
	var status services.QuotaStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.State.IsPro)
}
