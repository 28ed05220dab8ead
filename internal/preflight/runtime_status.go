package preflight

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"podmirror/internal/config"
)

// CheckSourceFromConfig evaluates the playlist source for status output.
func CheckSourceFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Playlist source"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	switch cfg.Source.Kind {
	case config.SourceYouTubeAPI:
		check := CheckYouTubeAPI(ctx, cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Source.PlaylistID)
		check.Name = name
		return check
	case config.SourceYTDLP:
		if _, err := exec.LookPath(cfg.Acquire.YTDLPBinary); err != nil {
			return Result{Name: name, Detail: "yt-dlp not found"}
		}
		return Result{Name: name, Passed: true, Detail: "yt-dlp " + cfg.Source.PlaylistURL}
	default:
		return Result{Name: name, Detail: "unknown source kind " + cfg.Source.Kind}
	}
}

// CheckPublishFromConfig evaluates the git remote for status output.
func CheckPublishFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Publish remote"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Publish.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.Publish.RemoteURL) == "" {
		return Result{Name: name, Detail: "Missing remote URL"}
	}
	probe := ProbeRemote(ctx, cfg.Publish.GitBinary, cfg.Publish.RemoteURL)
	return Result{Name: name, Passed: probe.Reachable, Detail: probe.Detail()}
}

// RemoteProbe reports whether the publish remote answered ls-remote.
type RemoteProbe struct {
	Reachable bool
	Remote    string
	Heads     int
	Err       string
}

// ProbeRemote runs `git ls-remote --heads` against remote. Credentials are
// not injected, so private remotes report as unreachable here even when the
// token-authenticated push works.
func ProbeRemote(ctx context.Context, gitBinary, remote string) RemoteProbe {
	gitBinary = strings.TrimSpace(gitBinary)
	if gitBinary == "" {
		gitBinary = "git"
	}
	probe := RemoteProbe{Remote: remote}
	if _, err := exec.LookPath(gitBinary); err != nil {
		probe.Err = "git not found"
		return probe
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, gitBinary, "ls-remote", "--heads", remote) //nolint:gosec
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.Output()
	if err != nil {
		probe.Err = err.Error()
		return probe
	}
	probe.Reachable = true
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if strings.TrimSpace(line) != "" {
			probe.Heads++
		}
	}
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p RemoteProbe) Detail() string {
	if !p.Reachable {
		if p.Err == "" {
			return "Unreachable"
		}
		return "Unreachable (" + p.Err + ")"
	}
	if p.Heads == 0 {
		return "Reachable (empty repository)"
	}
	return "Reachable"
}
