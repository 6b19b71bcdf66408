package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/internal/orchestrator"
	"github.com/sessionlens/sessiond/internal/relationship"
	"github.com/sessionlens/sessiond/internal/semantic"
	"github.com/sessionlens/sessiond/internal/sessionstate"
	"github.com/sessionlens/sessiond/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	cfg := config.Default()
	log := logging.NewNop()

	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "api.db")}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sem := semantic.New(cfg.Engine, log)
	state := sessionstate.New(cfg.Engine, log)
	mapper := relationship.New(cfg.Engine, log)
	orch := orchestrator.New(cfg.Engine, sem, state, mapper, log)

	srv, err := NewServer(cfg.Server, st, sem, state, mapper, orch, log)
	require.NoError(t, err)
	return srv, st
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sessionBody(t *testing.T, id string) string {
	t.Helper()
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	session := engine.Session{
		SessionID:    id,
		ProjectName:  "billing",
		UserID:       "u1",
		LastActivity: base.Add(10 * time.Minute),
		Messages: []engine.Message{
			{ID: "m1", Role: engine.RoleUser, Content: "the invoice export fails with an error", Timestamp: base},
			{ID: "m2", Role: engine.RoleAssistant, Content: "the cron job had a stale lock, fixed", Timestamp: base.Add(5 * time.Minute)},
			{ID: "m3", Role: engine.RoleUser, Content: "thanks, that worked", Timestamp: base.Add(10 * time.Minute)},
		},
	}
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	return string(raw)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNewServerRequiresStoreAndLogger(t *testing.T) {
	cfg := config.Default()
	_, err := NewServer(cfg.Server, nil, nil, nil, nil, nil, logging.NewNop())
	require.Error(t, err)

	st, err := store.Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	defer st.Close()
	_, err = NewServer(cfg.Server, st, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSaveSessionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"session_id":"s1"}`, rec.Body.String())
}

func TestSaveSessionRejectsMissingID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveSessionRejectsMissingMessages(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1")).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s2")).Code)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []engine.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

func TestSemanticEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1")).Code)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/s1/semantic", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var profile engine.SemanticProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "s1", profile.SessionID)
	assert.Equal(t, 3, profile.Structure.MessageCount)
}

func TestStateEndpointWritesProfileBack(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1")).Code)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/s1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var profile engine.StateProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "s1", profile.SessionID)
	assert.NotEmpty(t, profile.State)

	// Second save of the same profile must succeed; the handler upserts.
	require.NoError(t, st.SaveStateProfile(context.Background(), &profile))
}

func TestRelationshipsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1")).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s2")).Code)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/s1/relationships", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var set engine.RelationshipSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Equal(t, "s1", set.SessionID)
}

func TestUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/sessions/nope/semantic",
		"/api/v1/sessions/nope/state",
		"/api/v1/sessions/nope/relationships",
	} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestOrchestrateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/sessions", sessionBody(t, "s1")).Code)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/orchestrate", `{"session_id":"s1","intent":"document this session"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Action)
	assert.NotEmpty(t, result.Summary)
}

func TestOrchestrateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/orchestrate", `{"intent":"document"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/orchestrate", `{"session_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
