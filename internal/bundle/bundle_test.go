package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fansoftheone/engine/internal/artifact"
)

func testArtifact(raw string) artifact.Artifact {
	return artifact.Artifact{
		ID:               "3f1c2d9e-0000-4000-8000-000000000001",
		Brand:            artifact.Brand,
		Mode:             "diy",
		RawInput:         raw,
		StructuredOutput: artifact.Structure(raw, "diy"),
		CreatedAt:        time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
}

func readEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Errorf("%s: method = %d, want Deflate", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading %s: %v", f.Name, err)
		}
		out[f.Name] = body
	}
	return out
}

func TestBuild_Entries(t *testing.T) {
	raw := strings.Repeat("greenhouse ", 500) // 5500 chars
	a := testArtifact(raw)

	data, err := Build(a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entries := readEntries(t, data)

	if len(entries) != 2 {
		t.Fatalf("archive has %d entries, want 2", len(entries))
	}

	jsonBody, ok := entries[JSONEntry]
	if !ok {
		t.Fatalf("missing %s", JSONEntry)
	}
	var got artifact.Artifact
	if err := json.Unmarshal(jsonBody, &got); err != nil {
		t.Fatalf("decoding %s: %v", JSONEntry, err)
	}
	if got.RawInput != raw {
		t.Error("artifact.json raw_input must be the full untruncated input")
	}
	if got.ID != a.ID || got.Mode != a.Mode || got.Brand != a.Brand {
		t.Errorf("artifact.json = %+v", got)
	}
	if !strings.Contains(string(jsonBody), `"created_at": "2026-10-19T08:00:00Z"`) {
		t.Errorf("artifact.json not pretty-printed with Z timestamp:\n%s", jsonBody)
	}

	md, ok := entries[MDEntry]
	if !ok {
		t.Fatalf("missing %s", MDEntry)
	}
	if !strings.Contains(string(md), raw[:RawInputPreviewChars]) {
		t.Error("artifact.md must contain the first 2000 characters of raw input")
	}
	if strings.Contains(string(md), raw[:RawInputPreviewChars+1]) {
		t.Error("artifact.md must not contain more than 2000 characters of raw input")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a := testArtifact("Build a backyard greenhouse")
	first, err := Build(a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Build output differs for the same artifact")
	}
}

func TestBuild_UnicodeNotEscaped(t *testing.T) {
	a := testArtifact("Serre <jardin> & légumes")
	data, err := Build(a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	body := string(readEntries(t, data)[JSONEntry])
	if !strings.Contains(body, "Serre <jardin> & légumes") {
		t.Errorf("raw input escaped in artifact.json:\n%s", body)
	}
}

// TestRenderMarkdown_Structure parses artifact.md and checks its outline.
func TestRenderMarkdown_Structure(t *testing.T) {
	a := testArtifact("Build a backyard greenhouse")
	src := []byte(RenderMarkdown(a))

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var headings []string
	var bullets []string
	var code string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			headings = append(headings, strings.Repeat("#", node.Level)+" "+string(node.Text(src)))
		case *ast.ListItem:
			bullets = append(bullets, string(node.Text(src)))
		case *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				code += string(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	wantHeadings := []string{
		"# Fans of the One Artifact",
		"## Summary",
		"## Execution Plan",
		"## Raw Input (truncated)",
	}
	if strings.Join(headings, "|") != strings.Join(wantHeadings, "|") {
		t.Errorf("headings = %q, want %q", headings, wantHeadings)
	}

	if len(bullets) != 4 {
		t.Fatalf("bullets = %q, want 4 plan steps", bullets)
	}
	for i, step := range artifact.ExecutionPlan() {
		if bullets[i] != step {
			t.Errorf("bullet %d = %q, want %q", i, bullets[i], step)
		}
	}

	if strings.TrimSpace(code) != "Build a backyard greenhouse" {
		t.Errorf("fenced code = %q", code)
	}

	for _, want := range []string{
		"**Artifact ID:** " + a.ID,
		"**Mode:** diy",
		"**Created:** 2026-10-19T08:00:00Z",
	} {
		if !strings.Contains(string(src), want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestFilename(t *testing.T) {
	a := testArtifact("x")
	want := "fans_of_the_one_artifact_" + a.ID + ".zip"
	if got := Filename(a); got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}
