package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"podmirror/internal/config"
)

// WriteFile fills path with size bytes of filler. A size <= 0 writes a single
// byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteArtifact places a media file called name (without extension) in the
// work directory of cfg and returns its path.
func WriteArtifact(t testing.TB, cfg *config.Config, name string, size int64) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.WorkDir, name+cfg.Sync.MediaExtension)
	WriteFile(t, path, size)
	return path
}
