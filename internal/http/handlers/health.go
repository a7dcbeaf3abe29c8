package handlers

import "net/http"

// Healthz is a liveness probe; it says nothing about engine health.
func (a *App) Healthz(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
