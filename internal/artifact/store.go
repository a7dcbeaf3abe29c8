// Package artifact persists generated outputs per job and per type under a
// single store root, with a sibling metadata.json per job. Paths handed out
// are always relative to the root and never escape it.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

const metadataFile = "metadata.json"

// Store is the file-backed artifact store.
type Store struct {
	root   string
	logger infra.Logger
}

// NewStore initializes a Store rooted at root, creating it when absent.
func NewStore(root string, logger infra.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("artifact: store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure store root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the configured store root.
func (s *Store) Root() string { return s.root }

// SaveArtifact copies sourcePath into <job_id>/<artifact_type>/ and merges
// metadata into the job's metadata.json under artifacts.<type>. The copy
// leaves the caller's original file in place. A missing source reports
// domain.ErrNotFound.
func (s *Store) SaveArtifact(ctx context.Context, jobID string, artifactType domain.ArtifactType, sourcePath string, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	jobKey, err := sanitizeComponent(jobID)
	if err != nil {
		return "", fmt.Errorf("artifact: job id: %w", err)
	}
	typeKey, err := sanitizeComponent(string(artifactType))
	if err != nil {
		return "", fmt.Errorf("artifact: artifact type: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("artifact: source %q: %w", sourcePath, domain.ErrNotFound)
		}
		return "", fmt.Errorf("artifact: open source: %w", err)
	}
	defer src.Close()

	dir := filepath.Join(s.root, jobKey, typeKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: ensure directory: %w", err)
	}

	filename := filepath.Base(sourcePath)
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("artifact: create destination: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("artifact: copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("artifact: close destination: %w", err)
	}

	if metadata != nil {
		if err := s.mergeMetadata(jobKey, typeKey, metadata); err != nil {
			return "", err
		}
	}

	return path.Join(jobKey, typeKey, filename), nil
}

// ArtifactURL returns the relative path of the first artifact stored under
// the given type, in lexical order. One artifact per type is the contract; a
// re-save of the same type adds a file but the metadata entry is replaced.
func (s *Store) ArtifactURL(jobID string, artifactType domain.ArtifactType) (string, bool) {
	jobKey, err := sanitizeComponent(jobID)
	if err != nil {
		return "", false
	}
	typeKey, err := sanitizeComponent(string(artifactType))
	if err != nil {
		return "", false
	}
	entries, err := os.ReadDir(filepath.Join(s.root, jobKey, typeKey))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			return path.Join(jobKey, typeKey, e.Name()), true
		}
	}
	return "", false
}

// ListArtifacts scans the job directory and returns every stored artifact
// with its per-type metadata attached. An absent job directory yields an
// empty list, never an error.
func (s *Store) ListArtifacts(jobID string) []domain.Artifact {
	jobKey, err := sanitizeComponent(jobID)
	if err != nil {
		return nil
	}
	jobDir := filepath.Join(s.root, jobKey)
	types, err := os.ReadDir(jobDir)
	if err != nil {
		return nil
	}

	meta := s.readMetadata(jobKey)

	var out []domain.Artifact
	for _, t := range types {
		if !t.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(jobDir, t.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			out = append(out, domain.Artifact{
				JobID:        jobID,
				ArtifactType: domain.ArtifactType(t.Name()),
				RelativePath: path.Join(jobKey, t.Name(), f.Name()),
				Filename:     f.Name(),
				Metadata:     meta[t.Name()],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

// Open returns a reader over one stored artifact, addressed by the relative
// path SaveArtifact returned.
func (s *Store) Open(relativePath string) (io.ReadCloser, error) {
	clean, err := sanitizePath(relativePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact: %q: %w", relativePath, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("artifact: open: %w", err)
	}
	return f, nil
}

// mergeMetadata rewrites metadata.json with this type's entry replaced and
// every other type's entry untouched.
func (s *Store) mergeMetadata(jobKey, typeKey string, metadata map[string]any) error {
	doc := struct {
		Artifacts map[string]map[string]any `json:"artifacts"`
	}{Artifacts: s.readMetadata(jobKey)}
	if doc.Artifacts == nil {
		doc.Artifacts = make(map[string]map[string]any)
	}
	doc.Artifacts[typeKey] = metadata

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode metadata: %w", err)
	}
	target := filepath.Join(s.root, jobKey, metadataFile)
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return fmt.Errorf("artifact: write metadata: %w", err)
	}
	return nil
}

// readMetadata loads the per-job metadata map. Corrupt or missing documents
// degrade to empty, logged at warn level.
func (s *Store) readMetadata(jobKey string) map[string]map[string]any {
	raw, err := os.ReadFile(filepath.Join(s.root, jobKey, metadataFile))
	if err != nil {
		return map[string]map[string]any{}
	}
	var doc struct {
		Artifacts map[string]map[string]any `json:"artifacts"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobKey).Msg("artifact: corrupt metadata.json, treating as empty")
		return map[string]map[string]any{}
	}
	if doc.Artifacts == nil {
		return map[string]map[string]any{}
	}
	return doc.Artifacts
}

// sanitizeComponent accepts one path component and rejects anything that
// could leave the store root.
func sanitizeComponent(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}

// sanitizePath normalizes a relative path and prevents escaping the root.
func sanitizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("artifact: path is required")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	cleaned := filepath.ToSlash(filepath.Clean(p))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("artifact: invalid path %q", p)
	}
	return cleaned, nil
}
