package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "")
	if err := Render(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "uid2")

	dir := t.TempDir()
	if err := Render(dir); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	cases := []struct {
		file string
		uid  string
	}{
		{"lorasim-greptime.json", "uid1"},
		{"lorasim-prometheus.json", "uid2"},
	}
	for _, tc := range cases {
		b, err := os.ReadFile(filepath.Join(dir, tc.file))
		if err != nil {
			t.Fatalf("read %s: %v", tc.file, err)
		}
		if !strings.Contains(string(b), tc.uid) {
			t.Fatalf("%s: datasource uid not rendered", tc.file)
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("%s is not valid JSON: %v", tc.file, err)
		}
	}

	b, _ := os.ReadFile(filepath.Join(dir, "lorasim-prometheus.json"))
	if !strings.Contains(string(b), "lost {{reason}}") {
		t.Fatalf("legend placeholders should survive rendering")
	}
}
