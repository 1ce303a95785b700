package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(m Monitor) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/progress", GetProgress(m))
	r.Get("/sessions/{account}", GetSession(m))
	return r
}
