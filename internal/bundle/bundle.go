// Package bundle renders an artifact into a two-entry zip archive:
// artifact.json (the full record) and artifact.md (a readable summary).
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/fansoftheone/engine/internal/artifact"
)

const (
	JSONEntry = "artifact.json"
	MDEntry   = "artifact.md"

	// RawInputPreviewChars caps the raw input embedded in artifact.md.
	RawInputPreviewChars = 2000
)

// Build returns the zip archive for a. The output depends only on a.
func Build(a artifact.Artifact) ([]byte, error) {
	jsonBody, err := renderJSON(a)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	entries := []struct {
		name string
		body []byte
	}{
		{JSONEntry, jsonBody},
		{MDEntry, []byte(RenderMarkdown(a))},
	}
	for _, e := range entries {
		// Modified is left zero so identical artifacts produce identical bytes.
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", e.name, err)
		}
		if _, err := f.Write(e.body); err != nil {
			return nil, fmt.Errorf("writing %s: %w", e.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the attachment name for a's archive, e.g.
// "fans_of_the_one_artifact_<id>.zip".
func Filename(a artifact.Artifact) string {
	brand := strings.ReplaceAll(strings.ToLower(a.Brand), " ", "_")
	return fmt.Sprintf("%s_artifact_%s.zip", brand, a.ID)
}

func renderJSON(a artifact.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", JSONEntry, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// RenderMarkdown produces the artifact.md document.
func RenderMarkdown(a artifact.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Artifact\n\n", a.Brand)
	fmt.Fprintf(&b, "**Artifact ID:** %s\n", a.ID)
	fmt.Fprintf(&b, "**Mode:** %s\n", a.Mode)
	fmt.Fprintf(&b, "**Created:** %s\n\n", artifact.FormatTimestamp(a.CreatedAt))

	b.WriteString("## Summary\n")
	b.WriteString(a.StructuredOutput.Summary)
	b.WriteString("\n\n## Execution Plan\n")
	for _, step := range a.StructuredOutput.ExecutionPlan {
		fmt.Fprintf(&b, "- %s\n", step)
	}

	b.WriteString("\n## Raw Input (truncated)\n```\n")
	b.WriteString(artifact.TruncateRunes(a.RawInput, RawInputPreviewChars))
	b.WriteString("\n```\n")
	return b.String()
}
