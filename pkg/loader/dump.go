package loader

import (
	"os"
	"path/filepath"
	"strings"
)

// DumpDir returns the active dump directory, or "" when dumping is off
func (l *Loader) DumpDir() string {
	return l.dumpDir
}

// dump writes content to <dir>/<a>/<b>/<Name><ext>, replacing any earlier
// file. Failures are logged.
func (l *Loader) dump(mappedName string, content []byte) {
	if l.dumpDir == "" {
		return
	}

	rel := filepath.FromSlash(strings.ReplaceAll(mappedName, ".", "/")) + l.store.Extension()
	path := filepath.Join(l.dumpDir, rel)

	l.dumpMu.Lock()
	defer l.dumpMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.log.Error(err, "failed to create dump directory", "unit", mappedName)
		return
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		l.log.Error(err, "failed to dump unit", "unit", mappedName, "path", path)
		return
	}
	l.log.V(1).Info("dumped unit", "unit", mappedName, "path", path)
}
