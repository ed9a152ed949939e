package command

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDocsCommand_Markdown(t *testing.T) {
	out, err := runApp(t, "docs", "--format", "markdown")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# Greenhouse step reference",
		"## Sales API (API)",
		"## Plants UI (UI)",
		"| `I send a GET request to \"/api/health\" without authentication` |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestDocsCommand_HTMLEscapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.html")
	if _, err := runApp(t, "docs", "--format", "html", "--output", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	if !strings.Contains(html, `<h2>Categories UI <span class="surface">UI</span></h2>`) {
		t.Error("missing category heading")
	}
	if !strings.Contains(html, "I send a GET request to &#34;/api/health&#34; without authentication") {
		t.Error("step examples should be html escaped")
	}
}

func TestDocsCommand_MkDocs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "steps")
	out, err := runApp(t, "docs", "--output", dir)
	if err != nil {
		t.Fatal(err)
	}

	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[Sales API](sales-api.md)", "`{{random:N}}`", `"Rose{{random:4}}"`} {
		if !strings.Contains(string(index), want) {
			t.Errorf("index missing %q", want)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "dashboard-ui.md")); err != nil {
		t.Errorf("category page: %v", err)
	}
	if !strings.Contains(out, "Generated "+filepath.Join(dir, "index.md")) {
		t.Errorf("output = %s", out)
	}
}

func TestDocsCommand_UnknownFormat(t *testing.T) {
	if _, err := runApp(t, "docs", "--format", "pdf"); err == nil || !strings.Contains(err.Error(), "unknown format: pdf") {
		t.Errorf("error = %v", err)
	}
}
