package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "image.png", Source: strings.NewReader("png-bytes")},
		{Name: "metadata.json", Source: strings.NewReader(`{"seed":42}`)},
	}
	if err := Archive(&buf, entries); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive holds %d files, want 2", len(zr.File))
	}

	want := map[string]string{
		"image.png":     "png-bytes",
		"metadata.json": `{"seed":42}`,
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if string(data) != want[f.Name] {
			t.Fatalf("%s holds %q, want %q", f.Name, data, want[f.Name])
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Archive(&buf, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		t.Fatalf("empty archive not readable: %v", err)
	}
}
