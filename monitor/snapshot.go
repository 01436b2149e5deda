package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const snapshotVersion = 1

type fileState struct {
	ModTime time.Time `yaml:"mtime"`
	Size    int64     `yaml:"size"`
}

func (f fileState) equal(o fileState) bool {
	return f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

type snapshot struct {
	Version int                  `yaml:"version"`
	Files   map[string]fileState `yaml:"files"`
}

// SnapshotStrategy compares the tree against a snapshot file recording each
// file's modification time and size. The first Check on a tree without a
// snapshot records a baseline and reports no changes.
type SnapshotStrategy struct {
	file string
}

// NewSnapshotStrategy stores its snapshot in file.
func NewSnapshotStrategy(file string) *SnapshotStrategy {
	return &SnapshotStrategy{file: file}
}

// File returns the snapshot file path.
func (s *SnapshotStrategy) File() string {
	return s.file
}

// Check implements Strategy. It does not update the snapshot; use Reset
// once a change has been synced.
func (s *SnapshotStrategy) Check(ctx context.Context, root string) (Changes, error) {
	current, err := s.scan(ctx, root)
	if err != nil {
		return Changes{}, err
	}

	var changes Changes
	err = s.withLock(func() error {
		prev, found, err := s.load()
		if err != nil {
			return err
		}
		if !found {
			return s.save(current)
		}
		changes = diff(prev, current)
		return nil
	})
	return changes, err
}

// Reset implements Resetter. Paths that no longer exist are dropped from
// the snapshot.
func (s *SnapshotStrategy) Reset(ctx context.Context, root string, paths ...string) error {
	return s.withLock(func() error {
		snap, _, err := s.load()
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
			switch {
			case errors.Is(err, fs.ErrNotExist):
				delete(snap.Files, p)
			case err != nil:
				return fmt.Errorf("stat %s: %w", p, err)
			default:
				snap.Files[p] = fileState{ModTime: info.ModTime(), Size: info.Size()}
			}
		}
		return s.save(snap)
	})
}

// ResetAll implements Resetter.
func (s *SnapshotStrategy) ResetAll(ctx context.Context, root string) error {
	current, err := s.scan(ctx, root)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		return s.save(current)
	})
}

func diff(prev, cur snapshot) Changes {
	var c Changes
	for path, old := range prev.Files {
		now, ok := cur.Files[path]
		switch {
		case !ok:
			c.Removed = append(c.Removed, path)
		case !old.equal(now):
			c.Updated = append(c.Updated, path)
		}
	}
	for path := range cur.Files {
		if _, ok := prev.Files[path]; !ok {
			c.Added = append(c.Added, path)
		}
	}
	c.sort()
	return c
}

// scan records every regular file under root, skipping .git and the
// snapshot's own files.
func (s *SnapshotStrategy) scan(ctx context.Context, root string) (snapshot, error) {
	snap := snapshot{Version: snapshotVersion, Files: make(map[string]fileState)}

	skip := map[string]bool{}
	if abs, err := filepath.Abs(s.file); err == nil {
		skip[abs] = true
		skip[abs+".lock"] = true
		skip[abs+".tmp"] = true
	}

	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(path); err == nil && skip[abs] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		snap.Files[filepath.ToSlash(rel)] = fileState{ModTime: info.ModTime(), Size: info.Size()}
		return nil
	})
	if err != nil {
		return snapshot{}, fmt.Errorf("scanning %s: %w", root, err)
	}
	return snap, nil
}

func (s *SnapshotStrategy) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	lock := flock.New(s.file + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire snapshot lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func (s *SnapshotStrategy) load() (snapshot, bool, error) {
	empty := snapshot{Version: snapshotVersion, Files: make(map[string]fileState)}

	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return empty, false, nil
		}
		return empty, false, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return empty, false, fmt.Errorf("parsing snapshot %s: %w", s.file, err)
	}
	if snap.Version != snapshotVersion {
		return empty, false, fmt.Errorf("unsupported snapshot version %d (expected %d)", snap.Version, snapshotVersion)
	}
	if snap.Files == nil {
		snap.Files = make(map[string]fileState)
	}
	return snap, true, nil
}

func (s *SnapshotStrategy) save(snap snapshot) error {
	snap.Version = snapshotVersion
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
