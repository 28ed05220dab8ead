package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podmirror/internal/config"
	"podmirror/internal/testsupport"
)

// ytdlpStub lists ../playlist.jsonl (relative to the script) for listing
// calls and writes the requested audio file for downloads. Any URL for the
// item id "bad" fails.
const ytdlpStub = `case "$*" in
*--flat-playlist*)
  exec cat "$(dirname "$0")/../playlist.jsonl"
  ;;
*v=bad*)
  echo "ERROR: HTTP Error 403: Forbidden" >&2
  exit 1
  ;;
esac
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then
    shift
    out="$1"
  fi
  shift
done
file=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
printf 'audio' > "$file"
echo "[download] 100.0% of 1.00MiB"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries("ffmpeg", "ffprobe", "git"),
		testsupport.WithScript("yt-dlp", ytdlpStub),
	)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) setPlaylist(t *testing.T, lines ...string) {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(e.cfg), "playlist.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath}, args...)...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}
