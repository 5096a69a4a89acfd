package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/harpoon/pkg/launch"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "units", "app", "Boot.cue"),
		`launch: {target: "app.Main", args: ["--boot"], passthrough: true}`)
	writeFile(t, filepath.Join(dir, "units", "app", "Main.cue"), `greeting: "hi"`)
	writeFile(t, filepath.Join(dir, "harpoon.cue"), `
sources: [{kind: "dir", path: "units"}]
components: ["app.Boot"]
extension: ".cue"
preload: ["app.Main", "app.Missing"]
`)

	var out bytes.Buffer
	err := run(context.Background(), Flags{
		ConfigPath:         filepath.Join(dir, "harpoon.cue"),
		PreloadConcurrency: 2,
	}, []string{"extra"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Target    string         `json:"target"`
		Arguments []string       `json:"arguments"`
		Unit      map[string]any `json:"unit"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("invalid output %q: %v", out.String(), err)
	}
	if doc.Target != "app.Main" {
		t.Errorf("unexpected target %s", doc.Target)
	}
	if !reflect.DeepEqual(doc.Arguments, []string{"--boot", "extra"}) {
		t.Errorf("unexpected arguments %v", doc.Arguments)
	}
	if doc.Unit["greeting"] != "hi" {
		t.Errorf("unexpected unit %v", doc.Unit)
	}
}

func TestRunWithoutComponentsIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "harpoon.cue"), `sources: [{kind: "dir", path: "."}]`)

	err := run(context.Background(), Flags{ConfigPath: filepath.Join(dir, "harpoon.cue")}, nil, &bytes.Buffer{})
	if !launch.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "component", "home", "assets-dir", "profile", "zap-log-level"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag %s", name)
		}
	}
}
