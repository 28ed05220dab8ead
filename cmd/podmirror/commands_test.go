package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podmirror/internal/runlock"
	"podmirror/internal/services"
	"podmirror/internal/testsupport"
)

func TestSyncEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	env.setPlaylist(t,
		`{"id":"v1","title":"S1 E1: Pilot","playlist_index":1}`,
		`{"id":"v2","title":"S1 E2: Second","playlist_index":2}`,
		`{"id":"bad","title":"S1 E3: Blocked","playlist_index":3}`,
	)

	out, err := env.run(t, "sync")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	requireContains(t, out, "Acquired: 2")
	requireContains(t, out, "Failed: 1")
	requireContains(t, out, "Watermark: none -> 2")

	for _, name := range []string{"S01E01.mp3", "S01E02.mp3", "feed.xml"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(env.cfg.StagingDir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging directory left behind: %v", err)
	}
	doc, err := os.ReadFile(env.cfg.FeedPath())
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(doc), "S1 E2: Second")
	requireContains(t, string(doc), "https://example.test/pod/S01E01.mp3")

	out, err = env.run(t, "watermark", "show")
	if err != nil {
		t.Fatalf("watermark show: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Fatalf("watermark = %q, want 2", out)
	}

	out, err = env.run(t, "sync")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	requireContains(t, out, "No new items")

	out, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "no_new_items")

	out, err = env.run(t, "history", "--failed")
	if err != nil {
		t.Fatalf("history --failed: %v", err)
	}
	requireContains(t, out, "bad")
	requireContains(t, out, "S1 E3: Blocked")
}

func TestSyncSourceFailureExitCode(t *testing.T) {
	env := setupCLITestEnv(t)
	// No playlist file: the listing stub exits non-zero.

	_, err := env.run(t, "sync")
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if code := services.ExitCode(err); code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	out, err := env.run(t, "watermark", "show")
	if err != nil {
		t.Fatalf("watermark show: %v", err)
	}
	requireContains(t, out, "none")
}

func TestSyncRefusesWhileLocked(t *testing.T) {
	env := setupCLITestEnv(t)
	env.setPlaylist(t, `{"id":"v1","title":"S1 E1","playlist_index":1}`)
	lease, err := runlock.Acquire(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer func() { _ = lease.Release() }()

	_, err = env.run(t, "sync")
	if !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if code := services.ExitCode(err); code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

func TestWatermarkSetRequiresForceToLower(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.run(t, "watermark", "set", "5"); err != nil {
		t.Fatalf("set 5: %v", err)
	}
	if _, err := env.run(t, "watermark", "set", "3"); err == nil {
		t.Fatal("expected lowering without --force to fail")
	}
	if _, err := env.run(t, "watermark", "set", "3", "--force"); err != nil {
		t.Fatalf("set 3 --force: %v", err)
	}
	out, err := env.run(t, "watermark", "show")
	if err != nil {
		t.Fatalf("watermark show: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Fatalf("watermark = %q, want 3", out)
	}
	if _, err := env.run(t, "watermark", "set", "abc"); err == nil {
		t.Fatal("expected error for non-numeric position")
	}
}

func TestFeedRebuildFromDisk(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteArtifact(t, env.cfg, "S02E01", 2048)
	testsupport.WriteArtifact(t, env.cfg, "xYz123", 10)

	out, err := env.run(t, "feed", "rebuild")
	if err != nil {
		t.Fatalf("feed rebuild: %v", err)
	}
	requireContains(t, out, "(2 items)")
	doc, err := os.ReadFile(env.cfg.FeedPath())
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(doc), "Season 2 Episode 1")
	requireContains(t, string(doc), `length="2048"`)
}

func TestPublishRequiresEnabled(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "publish")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if code := services.ExitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status", "--offline")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Watermark:")
	requireContains(t, out, "[INFO] none")
	requireContains(t, out, "[OK] idle")
	requireContains(t, out, "No runs recorded")
	requireContains(t, out, "skipped (--offline)")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Source: ytdlp")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists without --overwrite")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Publish.Token = "ghp_secret"
	env.cfg.Publish.RemoteURL = "https://user:pw@github.com/user/mirror.git"
	testsupport.WriteConfig(t, env.configPath, env.cfg)

	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "ghp_secret") || strings.Contains(out, "user:pw") {
		t.Fatalf("secrets leaked: %s", out)
	}
	requireContains(t, out, "https://github.com/user/mirror.git")
	requireContains(t, out, "<redacted>")
}

func TestInvalidConfigExitCode(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Feed.BaseURL = ""
	testsupport.WriteConfig(t, env.configPath, env.cfg)

	_, err := env.run(t, "watermark", "show")
	if code := services.ExitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2 (err %v)", code, err)
	}
}
