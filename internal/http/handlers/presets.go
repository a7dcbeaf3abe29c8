package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pipeline/internal/domain"
	"pipeline/internal/preset"
)

func (a *App) ListPresets(w http.ResponseWriter, r *http.Request) {
	f := preset.Filter{EngineRequirement: r.URL.Query().Get("engine")}
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := domain.PresetCategory(raw)
		if !c.Valid() {
			a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "unknown category "+strconv.Quote(raw))
			return
		}
		f.Category = c
	}
	a.json(w, http.StatusOK, map[string]any{"items": a.Presets.List(f)})
}

func (a *App) PresetDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "preset_id")
	p, ok := a.Presets.Get(id)
	if !ok {
		a.error(w, http.StatusNotFound, string(domain.CodePresetNotFound), "preset not found: "+id)
		return
	}
	a.json(w, http.StatusOK, p)
}
