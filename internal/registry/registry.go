// Package registry owns the set of finished media artifacts in the work
// directory and the title mapping that remembers which upstream item and
// title each artifact came from.
//
// Artifacts are named after their episode code (S08E30.mp3) when the title
// carries one, and after the upstream identifier otherwise. Existing
// artifacts are never overwritten or deleted: when two upstream items claim
// the same episode code the later one keeps its identifier name.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"podmirror/internal/episodeid"
	"podmirror/internal/fileutil"
	"podmirror/internal/logging"
	"podmirror/internal/playlist"
)

// Record is the mapping entry kept for one artifact name.
type Record struct {
	ItemID string
	Title  string
}

// Artifact is one finished media file.
type Artifact struct {
	Name    string // base name without extension
	File    string // file name inside the work directory
	Path    string
	Size    int64
	ModTime time.Time
}

// Plan is the registry's decision for one playlist item before acquisition.
type Plan struct {
	// Name is the artifact name the item should end up with.
	Name string
	// TempName is the name acquisition downloads under before Register
	// promotes it.
	TempName string
	// Satisfied is set when an artifact already covers the item.
	Satisfied bool
	// Collision is set when the episode code name belongs to a different
	// upstream item, so the item is stored under its identifier.
	Collision bool
	// Promote is set when an artifact named after the identifier is already
	// on disk (a run stopped between download and Register) and the code name
	// is free. The caller registers TempName without acquiring again.
	Promote bool
}

// Registry tracks artifacts and their title mapping.
type Registry struct {
	dir         string
	ext         string
	mappingPath string
	logger      *slog.Logger

	mu      sync.Mutex
	mapping map[string]Record
}

// Open loads the title mapping and returns a registry over dir. Artifacts use
// the extension ext (".mp3").
func Open(dir, ext, mappingPath string, logger *slog.Logger) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("registry directory required")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r := &Registry{
		dir:         dir,
		ext:         strings.ToLower(ext),
		mappingPath: mappingPath,
		logger:      logging.NewComponentLogger(logger, "registry"),
		mapping:     make(map[string]Record),
	}
	if err := r.loadMapping(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the work directory.
func (r *Registry) Dir() string { return r.dir }

// Ext returns the media extension, including the dot.
func (r *Registry) Ext() string { return r.ext }

// PathFor returns the on-disk path of the artifact called name.
func (r *Registry) PathFor(name string) string {
	return filepath.Join(r.dir, name+r.ext)
}

// Resolve decides how entry maps onto the artifact set.
func (r *Registry) Resolve(entry playlist.Entry, code episodeid.Code, hasCode bool) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idName := entry.ID
	plan := Plan{Name: idName, TempName: idName}

	if hasCode {
		codeName := code.Name()
		exists, err := fileutil.Exists(r.PathFor(codeName))
		if err != nil {
			return Plan{}, fmt.Errorf("stat %s: %w", codeName, err)
		}
		owner := r.mapping[codeName].ItemID
		switch {
		case !exists:
			plan.Name = codeName
		case owner == "" || owner == entry.ID:
			plan.Name = codeName
			plan.Satisfied = true
			return plan, nil
		default:
			plan.Collision = true
		}
	}

	exists, err := fileutil.Exists(r.PathFor(idName))
	if err != nil {
		return Plan{}, fmt.Errorf("stat %s: %w", idName, err)
	}
	switch {
	case !exists:
	case hasCode && !plan.Collision:
		plan.Promote = true
	default:
		plan.Name = idName
		plan.Satisfied = true
	}
	return plan, nil
}

// Register promotes the freshly acquired artifact tempName to its canonical
// name and records the mapping. When the code name is already taken, or the
// rename fails, the artifact keeps tempName. The returned name is the one the
// artifact ended up with.
func (r *Registry) Register(entry playlist.Entry, code episodeid.Code, hasCode bool, tempName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tempPath := r.PathFor(tempName)
	exists, err := fileutil.Exists(tempPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", tempPath, err)
	}
	if !exists {
		return "", fmt.Errorf("register %s: %w", tempPath, fs.ErrNotExist)
	}

	final := tempName
	if hasCode && code.Name() != tempName {
		codeName := code.Name()
		err := fileutil.MoveNoReplace(tempPath, r.PathFor(codeName))
		switch {
		case err == nil:
			final = codeName
		case errors.Is(err, fs.ErrExist):
			logging.WarnWithContext(r.logger, "episode name already taken; keeping upstream id name", "registry_collision",
				logging.String(logging.FieldItemID, entry.ID),
				logging.String(logging.FieldEpisode, codeName),
				logging.String("owner", r.mapping[codeName].ItemID),
				logging.String(logging.FieldErrorHint, "two playlist items carry the same episode code"),
				logging.String(logging.FieldImpact, "item is published under its upstream id"),
			)
		default:
			logging.WarnWithContext(r.logger, "rename to episode name failed; keeping upstream id name", "registry_rename_failed",
				logging.String(logging.FieldItemID, entry.ID),
				logging.String(logging.FieldEpisode, codeName),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "item is published under its upstream id"),
			)
		}
	}

	r.mapping[final] = Record{ItemID: entry.ID, Title: entry.Title}
	if err := r.saveMapping(); err != nil {
		return final, err
	}
	r.logger.Info("artifact registered",
		logging.String(logging.FieldItemID, entry.ID),
		logging.String(logging.FieldEpisode, final),
	)
	return final, nil
}

// Remember records entry as the source of an already existing artifact when
// the mapping has no owner for it yet. Existing records are left alone.
func (r *Registry) Remember(name string, entry playlist.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mapping[name]; ok {
		return nil
	}
	r.mapping[name] = Record{ItemID: entry.ID, Title: entry.Title}
	return r.saveMapping()
}

// Mapping returns a copy of the title mapping.
func (r *Registry) Mapping() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Record, len(r.mapping))
	for k, v := range r.mapping {
		out[k] = v
	}
	return out
}

// Artifacts scans the work directory. Only regular files with the media
// extension count; dotfiles and directories (including the staging area)
// are ignored. The result is sorted by name ascending.
func (r *Registry) Artifacts() ([]Artifact, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", r.dir, err)
	}
	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, r.ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		artifacts = append(artifacts, Artifact{
			Name:    strings.TrimSuffix(name, ext),
			File:    name,
			Path:    filepath.Join(r.dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}
