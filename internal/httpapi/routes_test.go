package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/betting-loadtest/internal/runner"
)

type stubMonitor struct {
	progress runner.Progress
	sessions map[string]runner.SessionStatus
}

func (s stubMonitor) Progress() runner.Progress { return s.progress }

func (s stubMonitor) Status(id string) (runner.SessionStatus, bool) {
	st, ok := s.sessions[id]
	return st, ok
}

func serve(t *testing.T, m Monitor, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	SetupRoutes(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(t, stubMonitor{}, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetProgress(t *testing.T) {
	m := stubMonitor{progress: runner.Progress{Total: 4, Running: 1, Completed: 2, Aborted: 1}}

	rec := serve(t, m, "/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got runner.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, m.progress, got)
}

func TestGetSession(t *testing.T) {
	m := stubMonitor{sessions: map[string]runner.SessionStatus{
		"laugh_g_1": {AccountID: "laugh_g_1", Done: true, Outcome: "completed", Phase: "completed", Payouts: 3},
	}}

	rec := serve(t, m, "/sessions/laugh_g_1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"laugh_g_1","done":true,"outcome":"completed","phase":"completed","payouts":3,"wagers":0}`, rec.Body.String())

	rec = serve(t, m, "/sessions/laugh_g_2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
