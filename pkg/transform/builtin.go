package transform

import (
	"bytes"
)

// Names of the transformers available from Builtins
const (
	NormalizeNewlines = "normalize-newlines"
	TrimTrailingSpace = "trim-trailing-space"
)

// Builtins returns a factory table holding the transformers shipped with
// harpoon. Callers may add their own entries to it.
func Builtins() *Factories {
	f := NewFactories()
	f.AddTransformer(NormalizeNewlines, func() (Transformer, error) {
		return New(NormalizeNewlines, 0, func(_, _ string, content []byte) ([]byte, error) {
			return normalizeNewlines(content), nil
		}), nil
	})
	f.AddTransformer(TrimTrailingSpace, func() (Transformer, error) {
		return New(TrimTrailingSpace, 10, func(_, _ string, content []byte) ([]byte, error) {
			return trimTrailingSpace(content), nil
		}), nil
	})
	f.AddExplicit(NormalizeNewlines, func() (ExplicitTransformer, error) {
		return NewExplicit(NormalizeNewlines, 0, func(_ string, content []byte) ([]byte, error) {
			return normalizeNewlines(content), nil
		}), nil
	})
	return f
}

func normalizeNewlines(content []byte) []byte {
	if content == nil || !bytes.Contains(content, []byte("\r")) {
		return content
	}
	out := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(out, []byte("\r"), []byte("\n"))
}

func trimTrailingSpace(content []byte) []byte {
	if content == nil {
		return nil
	}
	lines := bytes.Split(content, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " \t")
	}
	return bytes.Join(lines, []byte("\n"))
}
