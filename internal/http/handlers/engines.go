package handlers

import "net/http"

// ListEngines probes every registered adapter; healthy is point-in-time.
func (a *App) ListEngines(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Engines.List(r.Context())})
}
