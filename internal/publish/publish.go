// Package publish pushes the work directory to its hosting remote.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podmirror/internal/logging"
	"podmirror/internal/retry"
	"podmirror/internal/services"
)

// Publisher makes the work directory's current state visible to feed
// consumers.
type Publisher interface {
	Publish(ctx context.Context, workDir string) error
}

// Noop is used when publishing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string) error { return nil }

// GitConfig configures the git publisher.
type GitConfig struct {
	Binary        string
	RemoteURL     string
	Token         string
	Branch        string
	Force         bool
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
	PushAttempts  int
	PushBaseDelay time.Duration
	// Exclude lists paths kept out of commits via .git/info/exclude.
	Exclude []string
}

// Git commits everything in the work directory and pushes it to origin.
type Git struct {
	cfg      GitConfig
	executor services.Executor
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// Option configures the git publisher.
type Option func(*Git)

// WithExecutor injects a custom command executor (used in tests).
func WithExecutor(exec services.Executor) Option {
	return func(g *Git) {
		if exec != nil {
			g.executor = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Git) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSleep replaces the wait between push attempts (tests).
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Git) {
		g.sleep = sleep
	}
}

// NewGit constructs a git publisher.
func NewGit(cfg GitConfig, opts ...Option) (*Git, error) {
	if strings.TrimSpace(cfg.RemoteURL) == "" {
		return nil, errors.New("publish: remote url required")
	}
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Update podcast feed"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "podmirror"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "podmirror@localhost"
	}
	if cfg.PushAttempts <= 0 {
		cfg.PushAttempts = 3
	}
	if cfg.PushBaseDelay <= 0 {
		cfg.PushBaseDelay = 2 * time.Second
	}
	g := &Git{
		cfg:      cfg,
		executor: services.CommandExecutor{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "publish")
	return g, nil
}

// Publish initialises the repository if needed, commits all changes and
// pushes. A clean tree still pushes, which makes Publish a safe retry after a
// previous push failure.
func (g *Git) Publish(ctx context.Context, workDir string) error {
	logger := logging.WithContext(ctx, g.logger)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "prepare", workDir, err)
	}
	if _, err := os.Stat(filepath.Join(workDir, ".git")); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrPublishFailed, "publish", "stat repository", workDir, err)
		}
		if err := g.git(ctx, workDir, "init"); err != nil {
			return services.Wrap(services.ErrPublishFailed, "publish", "git init", "", err)
		}
		logger.Info("initialised git repository", logging.String("path", workDir))
	}

	if err := writeExcludes(workDir, g.cfg.Exclude); err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "write excludes", "", err)
	}
	if err := g.ensureRemote(ctx, workDir); err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "configure remote", "", err)
	}
	if err := g.git(ctx, workDir, "checkout", "-B", g.cfg.Branch); err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "git checkout", g.cfg.Branch, err)
	}
	if err := g.git(ctx, workDir, "add", "-A"); err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "git add", "", err)
	}

	dirty, err := g.hasChanges(ctx, workDir)
	if err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "git status", "", err)
	}
	if dirty {
		args := []string{
			"-c", "user.name=" + g.cfg.AuthorName,
			"-c", "user.email=" + g.cfg.AuthorEmail,
			"commit", "-m", g.cfg.CommitMessage,
		}
		if err := g.git(ctx, workDir, args...); err != nil {
			return services.Wrap(services.ErrPublishFailed, "publish", "git commit", "", err)
		}
	} else {
		logger.Info("nothing to commit; pushing existing head",
			logging.String(logging.FieldEventType, "publish_clean_tree"),
		)
	}

	pushArgs := []string{"push", "-u", "origin", g.cfg.Branch}
	if g.cfg.Force {
		pushArgs = append(pushArgs, "--force")
	}
	policy := retry.Policy{
		Attempts:  g.cfg.PushAttempts,
		BaseDelay: g.cfg.PushBaseDelay,
		Sleep:     g.sleep,
	}
	err = retry.Do(ctx, policy, func(attempt int) error {
		err := g.git(ctx, workDir, pushArgs...)
		if err != nil {
			logger.Warn("git push failed",
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", g.cfg.PushAttempts),
				logging.Error(err),
				logging.String(logging.FieldEventType, "publish_push_failed"),
			)
		}
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrPublishFailed, "publish", "git push", g.cfg.Branch, err)
	}
	logger.Info("published",
		logging.String("branch", g.cfg.Branch),
		logging.Bool("committed", dirty),
		logging.String(logging.FieldEventType, "publish_complete"),
	)
	return nil
}

func (g *Git) ensureRemote(ctx context.Context, workDir string) error {
	remote, err := authenticatedURL(g.cfg.RemoteURL, g.cfg.Token)
	if err != nil {
		return err
	}
	var existing []string
	if err := g.executor.Run(ctx, workDir, g.cfg.Binary, []string{"remote"}, func(line string) {
		existing = append(existing, strings.TrimSpace(line))
	}); err != nil {
		return g.redact(err)
	}
	for _, name := range existing {
		if name == "origin" {
			return g.git(ctx, workDir, "remote", "set-url", "origin", remote)
		}
	}
	return g.git(ctx, workDir, "remote", "add", "origin", remote)
}

func (g *Git) hasChanges(ctx context.Context, workDir string) (bool, error) {
	dirty := false
	err := g.executor.Run(ctx, workDir, g.cfg.Binary, []string{"status", "--porcelain"}, func(line string) {
		if strings.TrimSpace(line) != "" {
			dirty = true
		}
	})
	if err != nil {
		return false, g.redact(err)
	}
	return dirty, nil
}

func (g *Git) git(ctx context.Context, workDir string, args ...string) error {
	if err := g.executor.Run(ctx, workDir, g.cfg.Binary, args, nil); err != nil {
		return g.redact(err)
	}
	return nil
}

// redact strips the token from command errors, which echo remote URLs.
func (g *Git) redact(err error) error {
	if err == nil || g.cfg.Token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, g.cfg.Token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, g.cfg.Token, "***"))
}

// writeExcludes appends missing patterns to .git/info/exclude.
func writeExcludes(workDir string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	path := filepath.Join(workDir, ".git", "info", "exclude")
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	present := make(map[string]struct{})
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = struct{}{}
	}
	var missing []string
	for _, pattern := range patterns {
		if _, ok := present[pattern]; !ok {
			missing = append(missing, pattern)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	prefix := ""
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + strings.Join(missing, "\n") + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// authenticatedURL embeds token as the password of an https remote. Other
// schemes (ssh, file) are returned unchanged.
func authenticatedURL(remote, token string) (string, error) {
	if token == "" {
		return remote, nil
	}
	parsed, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return remote, nil
	}
	user := "x-access-token"
	if parsed.User != nil && parsed.User.Username() != "" {
		user = parsed.User.Username()
	}
	parsed.User = url.UserPassword(user, token)
	return parsed.String(), nil
}
