// Package preset loads and serves workflow presets from a YAML catalog
// directory. Presets are read-only at runtime; authoring happens outside the
// service.
package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Category          domain.PresetCategory
	EngineRequirement string
}

// Registry holds the loaded preset catalog behind a read-write lock so a
// reload can swap the whole map atomically.
type Registry struct {
	dir    string
	logger infra.Logger

	mu      sync.RWMutex
	presets map[string]domain.WorkflowPreset
}

// NewRegistry loads every preset document under dir. Malformed documents are
// logged and skipped; an unreadable directory is the only fatal condition.
func NewRegistry(dir string, logger infra.Logger) (*Registry, error) {
	r := &Registry{dir: dir, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the preset with the given id.
func (r *Registry) Get(id string) (domain.WorkflowPreset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[id]
	return p, ok
}

// List returns presets matching the filter, sorted by id.
func (r *Registry) List(f Filter) []domain.WorkflowPreset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkflowPreset, 0, len(r.presets))
	for _, p := range r.presets {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.EngineRequirement != "" && !requiresEngine(p, f.EngineRequirement) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of loaded presets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presets)
}

// Reload re-reads the catalog directory and swaps the in-memory map.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("preset: read catalog dir: %w", err)
	}

	loaded := make(map[string]domain.WorkflowPreset)
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		p, err := loadFile(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", e.Name()).Msg("preset: skipping invalid document")
			continue
		}
		if _, dup := loaded[p.ID]; dup {
			r.logger.Warn().Str("file", e.Name()).Str("preset_id", p.ID).Msg("preset: duplicate id, keeping first")
			continue
		}
		loaded[p.ID] = p
	}

	r.mu.Lock()
	r.presets = loaded
	r.mu.Unlock()

	r.logger.Info().Int("count", len(loaded)).Str("dir", r.dir).Msg("preset: catalog loaded")
	return nil
}

func isCatalogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func requiresEngine(p domain.WorkflowPreset, engineID string) bool {
	for _, e := range p.EngineRequirements {
		if e == engineID {
			return true
		}
	}
	return false
}

func loadFile(path string) (domain.WorkflowPreset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowPreset{}, fmt.Errorf("read: %w", err)
	}
	return Parse(raw)
}

// Parse decodes one preset document, applies defaults, and validates it.
func Parse(raw []byte) (domain.WorkflowPreset, error) {
	var p domain.WorkflowPreset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return domain.WorkflowPreset{}, fmt.Errorf("parse: %w", err)
	}

	if p.Name == "" {
		p.Name = displayName(p.ID)
	}
	if p.QualityLevels == nil {
		p.QualityLevels = map[string]map[string]any{domain.QualityStandard: {}}
	}

	if err := validate(p); err != nil {
		return domain.WorkflowPreset{}, err
	}
	return p, nil
}

func validate(p domain.WorkflowPreset) error {
	if p.ID == "" {
		return fmt.Errorf("preset id is required")
	}
	if !p.Category.Valid() {
		return fmt.Errorf("preset %q: unknown category %q", p.ID, p.Category)
	}
	if _, ok := p.QualityLevels[domain.QualityStandard]; !ok {
		return fmt.Errorf("preset %q: quality_levels must contain %q", p.ID, domain.QualityStandard)
	}
	return nil
}

func displayName(id string) string {
	c := cases.Title(language.Und)
	return c.String(strings.ReplaceAll(id, "_", " "))
}
