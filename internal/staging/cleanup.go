// Package staging manages the per-run download directories under
// <work_dir>/.staging. A run that is killed mid-download leaves its directory
// behind; later runs sweep directories that have been idle longer than the
// configured age.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podmirror/internal/logging"
)

// CleanResult lists what a sweep removed and what it could not.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with the error that kept it on disk.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes run directories whose newest entry is older than maxAge.
// A yt-dlp process still writing fragments keeps its directory alive even when
// the directory itself was created long ago. The run named keep is never
// touched, and loose files in stagingDir are left alone.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, keep string, logger *slog.Logger) CleanResult {
	var result CleanResult
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" || maxAge <= 0 {
		return result
	}
	dirs, err := ListDirectories(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}

	logger = logging.NewComponentLogger(logger, "staging")
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if dir.Name == keep || !dir.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale staging directory", "staging_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		logger.Info("removed stale staging directory",
			logging.String("run_dir", dir.Name),
			logging.Int64("bytes", dir.Size),
			logging.Duration("idle", time.Since(dir.ModTime).Round(time.Second)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// RemoveRun deletes one run's staging directory, then the staging root
// itself once nothing else is left in it.
func RemoveRun(stagingDir, runID string) error {
	stagingDir, runID = strings.TrimSpace(stagingDir), strings.TrimSpace(runID)
	if stagingDir == "" || runID == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(stagingDir, runID)); err != nil {
		return err
	}
	// Fails harmlessly while other runs' directories remain.
	_ = os.Remove(stagingDir)
	return nil
}

// DirInfo describes one run directory. ModTime is the newest modification
// time found anywhere inside it.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns the run directories under stagingDir. A missing
// staging root yields no entries.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(stagingDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		info, ok := inspect(path)
		if !ok {
			continue
		}
		info.Name = entry.Name()
		dirs = append(dirs, info)
	}
	return dirs, nil
}

// inspect walks a run directory for its total size and newest mtime.
func inspect(root string) (DirInfo, bool) {
	info := DirInfo{Path: root}
	found := false
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		stat, err := d.Info()
		if err != nil {
			return nil
		}
		found = true
		if stat.ModTime().After(info.ModTime) {
			info.ModTime = stat.ModTime()
		}
		if !d.IsDir() {
			info.Size += stat.Size()
		}
		return nil
	})
	return info, found
}
