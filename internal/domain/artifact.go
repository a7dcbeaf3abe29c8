package domain

// ArtifactType enumerates produced artifact kinds.
type ArtifactType string

const (
	ArtifactTypeImage ArtifactType = "image"
	ArtifactTypeVideo ArtifactType = "video"
	ArtifactTypeAudio ArtifactType = "audio"
)

// Artifact describes one generated output bound to a job. RelativePath is
// always relative to the artifact store root and never escapes it.
type Artifact struct {
	JobID        string         `json:"job_id"`
	ArtifactType ArtifactType   `json:"artifact_type"`
	RelativePath string         `json:"relative_path"`
	Filename     string         `json:"filename"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
