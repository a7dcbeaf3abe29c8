package domain

// PresetCategory enumerates the closed set of workflow categories.
type PresetCategory string

const (
	CategoryImageGeneration      PresetCategory = "image_generation"
	CategoryVideoGeneration      PresetCategory = "video_generation"
	CategoryCharacterPerformance PresetCategory = "character_performance"
	CategoryPostProcessing       PresetCategory = "post_processing"
	CategoryHybridPipeline       PresetCategory = "hybrid_pipeline"
)

// Valid reports whether c belongs to the closed category set.
func (c PresetCategory) Valid() bool {
	switch c {
	case CategoryImageGeneration, CategoryVideoGeneration, CategoryCharacterPerformance,
		CategoryPostProcessing, CategoryHybridPipeline:
		return true
	}
	return false
}

// InputTypeIdentityReference marks inputs carrying a real person's likeness.
// Presets with RequiresConsent gate submissions on these inputs.
const InputTypeIdentityReference = "identity_reference"

// QualityStandard is the tier every preset must define; it is the fallback
// when a requested tier is absent.
const QualityStandard = "standard"

// WorkflowPreset is a read-only, externally authored workflow definition.
type WorkflowPreset struct {
	ID                 string                    `json:"id" yaml:"id"`
	Name               string                    `json:"name" yaml:"name"`
	Category           PresetCategory            `json:"category" yaml:"category"`
	Description        string                    `json:"description,omitempty" yaml:"description"`
	RequiredInputs     map[string]string         `json:"required_inputs" yaml:"required_inputs"`
	OptionalInputs     map[string]string         `json:"optional_inputs,omitempty" yaml:"optional_inputs"`
	EngineRequirements []string                  `json:"engine_requirements" yaml:"engine_requirements"`
	QualityLevels      map[string]map[string]any `json:"quality_levels" yaml:"quality_levels"`
	RequiresConsent    bool                      `json:"requires_consent" yaml:"requires_consent"`
	FailureModes       map[string]string         `json:"failure_modes,omitempty" yaml:"failure_modes"`
}

// DefaultEngine returns the first engine requirement, or fallback when the
// preset names none.
func (p WorkflowPreset) DefaultEngine(fallback string) string {
	if len(p.EngineRequirements) > 0 {
		return p.EngineRequirements[0]
	}
	return fallback
}

// QualityParams resolves the parameter overrides for tier, falling back to
// the standard tier. The returned tier name is the one actually used.
func (p WorkflowPreset) QualityParams(tier string) (string, map[string]any) {
	if tier != "" {
		if params, ok := p.QualityLevels[tier]; ok {
			return tier, params
		}
	}
	return QualityStandard, p.QualityLevels[QualityStandard]
}

// Remediation returns the preset's remediation text for code, split into
// ordered steps, or nil when the preset defines none.
func (p WorkflowPreset) Remediation(code ErrorCode) []string {
	text, ok := p.FailureModes[string(code)]
	if !ok || text == "" {
		return nil
	}
	return []string{text}
}

// HasIdentityInput reports whether any declared input is an identity reference.
func (p WorkflowPreset) HasIdentityInput() bool {
	for _, t := range p.RequiredInputs {
		if t == InputTypeIdentityReference {
			return true
		}
	}
	for _, t := range p.OptionalInputs {
		if t == InputTypeIdentityReference {
			return true
		}
	}
	return false
}

// IdentityInputNames lists declared identity-reference input names.
func (p WorkflowPreset) IdentityInputNames() []string {
	var names []string
	for name, t := range p.RequiredInputs {
		if t == InputTypeIdentityReference {
			names = append(names, name)
		}
	}
	for name, t := range p.OptionalInputs {
		if t == InputTypeIdentityReference {
			names = append(names, name)
		}
	}
	return names
}
