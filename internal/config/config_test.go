package config

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/language"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Timeline.MinWeeks != 12 || cfg.Timeline.MaxWeeks != 48 || cfg.Timeline.MarkerSpacingWeeks != 2 || cfg.Timeline.PreviewTasks != 3 {
		t.Fatalf("unexpected timeline defaults: %+v", cfg.Timeline)
	}
	if cfg.Language() != language.English {
		t.Fatalf("expected english collation, got %v", cfg.Language())
	}
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("timeline:\n  marker_spacing_weeks: 3\nsort:\n  locale: pt-BR\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Timeline.MarkerSpacingWeeks != 3 || cfg.Timeline.MinWeeks != 12 {
		t.Fatalf("unexpected timeline: %+v", cfg.Timeline)
	}
	if cfg.Language() != language.MustParse("pt-BR") {
		t.Fatalf("unexpected language %v", cfg.Language())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"max below min":    "timeline:\n  min_weeks: 20\n  max_weeks: 10\n",
		"grid overflow":    "timeline:\n  max_weeks: 60\n",
		"zero spacing":     "timeline:\n  marker_spacing_weeks: 0\n",
		"bad locale":       "sort:\n  locale: '!!'\n",
		"relative webhook": "webhooks:\n  - url: /hook\n",
		"unknown event":    "webhooks:\n  - url: https://example.com/h\n    events: [task.exploded]\n",
		"malformed yaml":   "timeline: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestWebhookHelpers(t *testing.T) {
	off := false
	h := WebhookConfig{URL: "https://example.com", Events: []string{"project.created"}, Enabled: &off}
	if h.IsEnabled() {
		t.Fatal("expected disabled hook")
	}
	if !h.Wants("project.created") || h.Wants("project.updated") {
		t.Fatal("event subscription mismatch")
	}
	if h.Timeout().Seconds() != 5 {
		t.Fatalf("default timeout = %v", h.Timeout())
	}
	all := WebhookConfig{URL: "https://example.com"}
	if !all.IsEnabled() || !all.Wants("project.deleted") {
		t.Fatal("empty event list should match everything")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail without a config file")
	}
	if err := os.WriteFile(filepath.Join(dir, "projectboard.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load generated default: %v", err)
	}
}
