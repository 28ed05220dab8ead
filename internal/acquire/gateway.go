// Package acquire downloads the audio for one playlist item with yt-dlp.
//
// Downloads land in a per-run staging directory and are promoted to the work
// directory only once complete, so an interrupted download never looks like
// a finished artifact. Acquire never returns an error: the outcome, including
// the last failure, is reported in Result.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"podmirror/internal/fileutil"
	"podmirror/internal/logging"
	"podmirror/internal/playlist"
	"podmirror/internal/services"
)

const (
	defaultBinary      = "yt-dlp"
	defaultAudioFormat = "mp3"
	adhocRunID         = "adhoc"
)

var progressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// Request identifies the item to acquire and the artifact name to store it
// under.
type Request struct {
	ItemID string
	Target string
	// URL overrides the default watch URL derived from ItemID.
	URL string
}

// Result is the outcome of one Acquire call.
type Result struct {
	OK       bool
	Existing bool
	Strategy string
	Attempts int
	Path     string
	Err      error
}

// Config configures a Gateway.
type Config struct {
	Binary      string
	AudioFormat string
	// Ext is the media extension of finished artifacts, including the dot.
	Ext        string
	Dir        string
	StagingDir string
	Strategies []Strategy
	Timeout    time.Duration
	// MinInterval paces consecutive downloader invocations.
	MinInterval time.Duration
}

// Gateway runs yt-dlp through an Executor.
type Gateway struct {
	cfg      Config
	executor services.Executor
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithExecutor injects a custom command executor (used in tests).
func WithExecutor(exec services.Executor) Option {
	return func(g *Gateway) {
		if exec != nil {
			g.executor = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New constructs a Gateway.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("acquire: work directory required")
	}
	if strings.TrimSpace(cfg.StagingDir) == "" {
		cfg.StagingDir = filepath.Join(cfg.Dir, ".staging")
	}
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if strings.TrimSpace(cfg.AudioFormat) == "" {
		cfg.AudioFormat = defaultAudioFormat
	}
	if cfg.Ext == "" {
		cfg.Ext = "." + cfg.AudioFormat
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []Strategy{{Name: "default"}}
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	g := &Gateway{
		cfg:      cfg,
		executor: services.CommandExecutor{},
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "acquire")
	return g, nil
}

// FinalPath returns where an artifact named target is stored.
func (g *Gateway) FinalPath(target string) string {
	return filepath.Join(g.cfg.Dir, target+g.cfg.Ext)
}

// Acquire fetches req unless an artifact named req.Target already exists.
func (g *Gateway) Acquire(ctx context.Context, req Request) Result {
	final := g.FinalPath(req.Target)
	if req.ItemID == "" || req.Target == "" {
		return Result{Err: services.Wrap(services.ErrValidation, "acquire", "request", "item id and target required", nil)}
	}
	exists, err := fileutil.Exists(final)
	if err != nil {
		return Result{Err: services.Wrap(services.ErrAcquisitionFailed, "acquire", "stat", final, err)}
	}
	if exists {
		return Result{OK: true, Existing: true, Path: final}
	}

	runID, ok := services.RunIDFromContext(ctx)
	if !ok || runID == "" {
		runID = adhocRunID
	}
	stagingDir := filepath.Join(g.cfg.StagingDir, runID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Result{Err: services.Wrap(services.ErrAcquisitionFailed, "acquire", "staging", stagingDir, err)}
	}

	source := req.URL
	if source == "" {
		source = playlist.WatchURL(req.ItemID)
	}
	logger := logging.WithContext(ctx, g.logger).With(
		logging.String(logging.FieldItemID, req.ItemID),
		logging.String(logging.FieldEpisode, req.Target),
	)

	var lastErr error
	attempts := 0
	for _, strategy := range g.cfg.Strategies {
		if err := g.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		attempts++
		start := time.Now()
		staged, err := g.download(ctx, logger, strategy, source, stagingDir, req.Target)
		if err != nil {
			lastErr = err
			logger.Warn("acquisition strategy failed",
				logging.String("strategy", strategy.Name),
				logging.Duration("elapsed", time.Since(start)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "acquire_strategy_failed"),
			)
			g.discardStaged(stagingDir, req.Target)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := fileutil.MoveNoReplace(staged, final); err != nil {
			if errors.Is(err, fs.ErrExist) {
				_ = os.Remove(staged)
				return Result{OK: true, Existing: true, Strategy: strategy.Name, Attempts: attempts, Path: final}
			}
			lastErr = fmt.Errorf("promote %s: %w", staged, err)
			g.discardStaged(stagingDir, req.Target)
			break
		}
		logger.Info("acquisition succeeded",
			logging.String("strategy", strategy.Name),
			logging.Int("attempts", attempts),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "acquire_complete"),
		)
		return Result{OK: true, Strategy: strategy.Name, Attempts: attempts, Path: final}
	}

	if lastErr == nil {
		lastErr = errors.New("no strategies attempted")
	}
	return Result{
		Attempts: attempts,
		Err:      services.Wrap(services.ErrAcquisitionFailed, "acquire", req.ItemID, fmt.Sprintf("%d strategies exhausted", attempts), lastErr),
	}
}

func (g *Gateway) download(ctx context.Context, logger *slog.Logger, strategy Strategy, source, stagingDir, target string) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	template := filepath.Join(stagingDir, target+".%(ext)s")
	args := []string{"-x", "--audio-format", g.cfg.AudioFormat, "--no-playlist", "--newline", "-o", template}
	args = append(args, strategy.Args...)
	args = append(args, source)

	sampler := logging.NewProgressSampler(0)
	err := g.executor.Run(ctx, "", g.cfg.Binary, args, func(line string) {
		matches := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
		if len(matches) != 2 {
			return
		}
		percent, err := strconv.ParseFloat(matches[1], 64)
		if err != nil || !sampler.ShouldLog(percent, strategy.Name) {
			return
		}
		logger.Debug("download progress",
			logging.String("strategy", strategy.Name),
			logging.Int("percent", int(percent)),
		)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "acquire", "yt-dlp "+strategy.Name, "", err)
	}
	staged := filepath.Join(stagingDir, target+g.cfg.Ext)
	exists, err := fileutil.Exists(staged)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("yt-dlp reported success but %s is missing", staged)
	}
	return staged, nil
}

// discardStaged removes partial output for target (yt-dlp leaves .part,
// .webm, .ytdl and similar files next to the template).
func (g *Gateway) discardStaged(stagingDir, target string) {
	matches, err := filepath.Glob(filepath.Join(stagingDir, globEscape(target)+".*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		_ = os.Remove(path)
	}
}

func globEscape(s string) string {
	replacer := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return replacer.Replace(s)
}
