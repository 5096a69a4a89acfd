package cueunit

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/chazu/harpoon/pkg/loader"
	"github.com/chazu/harpoon/pkg/resource"
	"github.com/chazu/harpoon/pkg/transform"
)

func TestDefine(t *testing.T) {
	d := NewDefiner()

	h, err := d.Define(&loader.Unit{
		Name:    "com.example.Greeter",
		Content: []byte(`greeting: "hello", launch: {target: "com.example.Main", args: ["-v"]}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := h.(*Module)
	if m.UnitName() != "com.example.Greeter" {
		t.Errorf("unexpected name %s", m.UnitName())
	}

	v, err := m.Lookup("greeting")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if s, _ := v.String(); s != "hello" {
		t.Errorf("expected hello, got %s", s)
	}

	var args []string
	if err := m.Decode("launch.args", &args); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(args) != 1 || args[0] != "-v" {
		t.Errorf("unexpected args %v", args)
	}

	if _, err := m.Lookup("missing"); err == nil {
		t.Error("expected error for missing field")
	}

	data, err := m.JSON()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out["greeting"] != "hello" {
		t.Errorf("unexpected export %s", data)
	}
}

func TestDefineRejectsInvalidCUE(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "syntax", content: `a: {`},
		{name: "conflict", content: `a: 1, a: 2`},
	}

	d := NewDefiner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Define(&loader.Unit{Name: "bad", Content: []byte(tt.content)}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefinerWithLoader(t *testing.T) {
	src := resource.NewFSSource(fstest.MapFS{
		"units/Config.cue": {Data: []byte(`replicas: 3`)},
		"units/Broken.cue": {Data: []byte(`replicas: `)},
	}, "embedded")

	l := loader.New(loader.Options{
		Store:   resource.NewStore(".cue", src),
		Definer: NewDefiner(),
	})

	h, err := l.Load("units.Config")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	var replicas int
	if err := h.(*Module).Decode("replicas", &replicas); err != nil || replicas != 3 {
		t.Errorf("expected 3 replicas, got %d (err=%v)", replicas, err)
	}
	if h.(*Module).Package == nil || h.(*Module).Package.Name != "units" {
		t.Error("expected units package")
	}

	_, err = l.Load("units.Broken")
	if err == nil || !strings.Contains(err.Error(), "units.Broken") {
		t.Errorf("expected compile failure, got %v", err)
	}
	if !l.IsInvalid("units.Broken") {
		t.Error("expected broken unit to be poisoned")
	}
}

func TestDefineRejectsEmptyContent(t *testing.T) {
	d := NewDefiner()
	for _, content := range [][]byte{nil, {}} {
		_, err := d.Define(&loader.Unit{Name: "a.Unit", Content: content})
		if !errors.Is(err, loader.ErrEmptyContent) {
			t.Errorf("expected ErrEmptyContent for %q, got %v", content, err)
		}
	}
}

func TestDefinerWithLoaderRejectsDroppedContent(t *testing.T) {
	src := resource.NewFSSource(fstest.MapFS{
		"a/Unit.cue": {Data: []byte(`x: 1`)},
	}, "embedded")

	l := loader.New(loader.Options{
		Store:   resource.NewStore(".cue", src),
		Definer: NewDefiner(),
	})
	l.RegisterTransformer(transform.New("drop", 0, func(_, _ string, _ []byte) ([]byte, error) {
		return nil, nil
	}))

	_, err := l.Load("a.Unit")
	if !errors.Is(err, loader.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if !l.IsInvalid("a.Unit") {
		t.Error("expected unit to be poisoned")
	}
}
