package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ByLCY/storybook/layout"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Document.Backend != "canvas" {
		t.Errorf("Default backend = %q, want canvas", cfg.Document.Backend)
	}
	if cfg.Document.Labels.Footer != "Page ${page}" {
		t.Errorf("Footer label must not be expanded, got %q", cfg.Document.Labels.Footer)
	}
	if cfg.Document.OutputNameTemplate != "${title}" {
		t.Errorf("Output name template must not be expanded, got %q", cfg.Document.OutputNameTemplate)
	}
}

func TestDefaultsMatchLayoutDefaults(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	got, err := cfg.Document.Settings()
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	want := layout.DefaultSettings()

	g, w := got.Geometry, want.Geometry
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if !near(g.PageWidth, w.PageWidth) || !near(g.PageHeight, w.PageHeight) || g.Margin != w.Margin {
		t.Errorf("page geometry differs: %+v vs %+v", g, w)
	}
	if !near(g.FontSize, w.FontSize) || !near(g.LineHeight, w.LineHeight) || !near(g.Indent, w.Indent) {
		t.Errorf("typography differs: %+v vs %+v", g, w)
	}
	if !near(g.TitleFontSize, w.TitleFontSize) || !near(g.AuthorFontSize, w.AuthorFontSize) || !near(g.FooterFontSize, w.FooterFontSize) {
		t.Errorf("font sizes differ: %+v vs %+v", g, w)
	}
	if g.Cadence != w.Cadence || !near(g.IllustrationWidth, w.IllustrationWidth) || !near(g.MinSpace, w.MinSpace) || g.OnFailure != w.OnFailure {
		t.Errorf("illustration settings differ: %+v vs %+v", g, w)
	}
	if got.Labels != want.Labels {
		t.Errorf("labels differ: %+v vs %+v", got.Labels, want.Labels)
	}
	if strings.Join(got.Fonts.Body.Sources, ",") != strings.Join(want.Fonts.Body.Sources, ",") || got.Fonts.Title.Style != want.Fonts.Title.Style {
		t.Errorf("fonts differ: %+v vs %+v", got.Fonts, want.Fonts)
	}
	if got.Meta.Creator != want.Meta.Creator {
		t.Errorf("creator = %q, want %q", got.Meta.Creator, want.Meta.Creator)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	path := writeConfig(t, `version: 1
document:
  backend: fpdf
  core_font: Times
  page:
    size: A5 landscape
    margin: ["10mm", "12mm"]
  typography:
    font_size: 14pt
    line_height: 1.5x
  illustrations:
    cadence: 2
    on_failure: skip
  labels:
    footer: "- ${page} -"
    cover_title: true
logging:
  console:
    level: none
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Document.Backend != "fpdf" || cfg.Document.CoreFont != "Times" {
		t.Errorf("backend = %q/%q", cfg.Document.Backend, cfg.Document.CoreFont)
	}
	// untouched values keep defaults
	if cfg.Document.Labels.Author != "Author: ${author}" {
		t.Errorf("Author label = %q, want default", cfg.Document.Labels.Author)
	}

	s, err := cfg.Document.Settings()
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	g := s.Geometry
	if g.PageWidth != 210 || g.PageHeight != 148 {
		t.Errorf("page = %gx%g, want 210x148", g.PageWidth, g.PageHeight)
	}
	if g.Margin.Top != 10 || g.Margin.Left != 12 {
		t.Errorf("margin = %+v", g.Margin)
	}
	if math.Abs(g.LineHeight-1.5*14*layout.PtToMm) > 1e-9 {
		t.Errorf("line height = %g", g.LineHeight)
	}
	if g.Cadence != 2 || g.OnFailure != layout.OnFailureSkip || !s.Labels.CoverTitle || s.Labels.Footer != "- ${page} -" {
		t.Errorf("unexpected settings: %+v %+v", g, s.Labels)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
	cases := map[string]string{
		"invalid yaml":    "version: 1\ndocument:\n  backend: canvas\n  invalid indent\n",
		"unknown field":   "version: 1\nunknown_field: value\n",
		"bad version":     "version: 2\n",
		"bad backend":     "version: 1\ndocument:\n  backend: svg\n",
		"bad cadence":     "version: 1\ndocument:\n  illustrations:\n    cadence: 0\n",
		"bad on_failure":  "version: 1\ndocument:\n  illustrations:\n    on_failure: explode\n",
		"too many margin": "version: 1\ndocument:\n  page:\n    margin: [1, 2, 3, 4, 5]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfiguration(writeConfig(t, content)); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestSettingsErrors(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	d := cfg.Document
	d.Page.Size = "A0"
	if _, err := d.Settings(); err == nil || !strings.Contains(err.Error(), "page.size") {
		t.Errorf("expected page.size error, got %v", err)
	}
	d = cfg.Document
	d.Typography.FontSize = "huge"
	if _, err := d.Settings(); err == nil || !strings.Contains(err.Error(), "font_size") {
		t.Errorf("expected font_size error, got %v", err)
	}
}

func TestPrepareAndDump(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, true)
	if err != nil {
		t.Fatalf("Prepared config is not valid: %v", err)
	}
	out, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	again, err := unmarshalConfig(out, &Config{}, true)
	if err != nil {
		t.Fatalf("Dumped config is not valid: %v", err)
	}
	if again.Document.Labels != cfg.Document.Labels || again.Document.Illustrations != cfg.Document.Illustrations {
		t.Errorf("dump lost values: %+v vs %+v", again.Document, cfg.Document)
	}
}
