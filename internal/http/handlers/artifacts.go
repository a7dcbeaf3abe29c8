package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"pipeline/internal/domain"
	"pipeline/pkg/zip"
)

func (a *App) JobArtifacts(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	items := a.Manager.Artifacts(job.ID)
	if items == nil {
		items = []domain.Artifact{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobArchive bundles every artifact file for the job into one zip download.
func (a *App) JobArchive(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	items := a.Manager.Artifacts(job.ID)
	if len(items) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no artifacts")
		return
	}

	archive, err := a.archiveArtifacts(items)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: archive artifacts failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", job.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) archiveArtifacts(items []domain.Artifact) ([]byte, error) {
	entries := make([]zip.Entry, 0, len(items))
	defer func() {
		for _, e := range entries {
			if c, ok := e.Source.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()
	for _, art := range items {
		f, err := a.Artifacts.Open(art.RelativePath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", art.RelativePath, err)
		}
		entries = append(entries, zip.Entry{
			Name:   path.Join(string(art.ArtifactType), art.Filename),
			Source: f,
		})
	}

	var buf bytes.Buffer
	if err := zip.Archive(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
