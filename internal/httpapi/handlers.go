package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/betting-loadtest/internal/runner"
)

// Monitor is the read side of a run.
type Monitor interface {
	Progress() runner.Progress
	Status(accountID string) (runner.SessionStatus, bool)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func GetProgress(m Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Progress())
	}
}

func GetSession(m Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := m.Status(chi.URLParam(r, "account"))
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
