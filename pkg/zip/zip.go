// Package zip bundles job artifacts into a single downloadable archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
)

// Entry is one file to place in an archive. Source is drained but not closed.
type Entry struct {
	Name   string
	Source io.Reader
}

// Archive streams entries into w as a zip file. Entries keep their given
// order; duplicate names are left to the reader to resolve.
func Archive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		f, err := zw.Create(e.Name)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		if _, err := io.Copy(f, e.Source); err != nil {
			return fmt.Errorf("zip: write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip: finalize: %w", err)
	}
	return nil
}
