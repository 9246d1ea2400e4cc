package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/engine"
	"github.com/fyrsmithlabs/gatehouse/internal/gate"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Project:  config.ProjectConfig{Name: "demo", Root: t.TempDir(), StateDir: ".gatehouse"},
		Router:   config.RouterConfig{ConfidenceFloor: 0.05},
		Dispatch: config.DispatchConfig{Timeout: config.Duration(time.Second)},
		Pipeline: config.PipelineConfig{
			Phases: []config.PhaseConfig{
				{ID: "design", Classification: "process"},
				{ID: "build", Classification: "implementation", EntryArtifacts: []string{"design_doc"}},
			},
			Artifacts: []config.ArtifactConfig{
				{Role: "design_doc", Locator: "docs/design.md"},
			},
			Checklist: []config.ChecklistConfig{
				{ID: "design-approved", Phase: "design", Required: true,
					Evidence: config.EvidenceConfig{Kind: "approval", Key: "design"}},
			},
			Triggers: []config.TriggerConfig{
				{Phase: "design", Keywords: []string{"design", "plan", "schema"}, Weight: 1.0},
				{Phase: "build", Keywords: []string{"implement", "build", "code"}, Weight: 0.9},
			},
			Classification: []config.ClassifyConfig{
				{Pattern: "src/**", Phase: "build"},
			},
		},
	}
	eng, err := engine.New(cfg, nil, nil)
	require.NoError(t, err)

	s, err := NewServer(config.HTTPConfig{Host: "localhost", Port: 9180}, eng, nil)
	require.NoError(t, err)
	return s
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealthz(t *testing.T) {
	rec := doRequest(t, testServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStatus(t *testing.T) {
	rec := doRequest(t, testServer(t), http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st engine.ProjectStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "demo", st.Project)
	assert.Equal(t, "design", st.CurrentPhase)
	assert.Len(t, st.Phases, 2)
}

func TestFindingsEmpty(t *testing.T) {
	rec := doRequest(t, testServer(t), http.MethodGet, "/v1/findings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "null", rec.Body.String())
}

func TestGate(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/gate", `{"action":"write","resource":"src/main.go"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var d gate.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.False(t, d.Allowed)
	assert.Equal(t, "build", d.RequiredPhase)

	rec = doRequest(t, s, http.MethodPost, "/v1/gate", `{"action":"write","resource":"README.md"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.True(t, d.Allowed)
}

func TestRoute(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/route", `{"text":"design the storage schema"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.RouteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "design", res.Match.PhaseID)

	rec = doRequest(t, s, http.MethodPost, "/v1/route", `{"text":"xyzzy"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/route", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/verify", `{"phase":"design"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report engine.PhaseReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.ExitSatisfied)

	rec = doRequest(t, s, http.MethodPost, "/v1/verify", `{"phase":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprove(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/approve", `{"key":"design","granted_by":"alice"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/verify", `{"phase":"design"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var report engine.PhaseReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.ExitSatisfied)

	rec = doRequest(t, s, http.MethodPost, "/v1/approve", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvance(t *testing.T) {
	s := testServer(t)

	// Exit gate unmet and successor entry artifact missing.
	rec := doRequest(t, s, http.MethodPost, "/v1/advance", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.TransitionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Allowed)
	assert.Equal(t, "design", res.From)

	rec = doRequest(t, s, http.MethodPost, "/v1/advance", `{"kind":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/advance", `{"kind":"regress"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "regress without a target phase")
}

func TestAnalyzeUnbound(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/analyze", `{"phase":"build"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no analyzer bound to build")

	rec = doRequest(t, s, http.MethodPost, "/v1/analyze", `{"phase":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateValidation(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/gate", `{"action":"write"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/gate", `{"action":"yeet","resource":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
