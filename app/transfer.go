package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smnsjas/telsync/monitor"
)

// Kind selects which class of local changes a transfer handles.
type Kind string

const (
	KindAdded   Kind = "added"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	KindAll     Kind = "all"
)

// ParseKind accepts the names of the Kind constants.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAdded, KindUpdated, KindDeleted, KindAll:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ListChanges checks the local tree and prints what changed.
func (m *Model) ListChanges(ctx context.Context) (monitor.Changes, error) {
	changes, err := m.monitor.Check(ctx)
	if err != nil {
		m.notify.Bad("Error: unable to check local changes: " + err.Error())
		return changes, err
	}
	if changes.Empty() {
		m.notify.Info("No files changed.")
		return changes, nil
	}

	list := func(title string, files []string) {
		if len(files) == 0 {
			return
		}
		m.notify.Info(title)
		for _, f := range files {
			m.notify.Info("  " + f)
		}
	}
	list("UPDATED:", changes.Updated)
	list("ADDED:", changes.Added)
	list("DELETED:", changes.Removed)
	return changes, nil
}

// Transfer pushes local changes of the given kind to the server. Updated
// files go first, then added, then deleted. Each file that transfers is
// marked synced; the first failure stops the run.
func (m *Model) Transfer(ctx context.Context, kind Kind, useDifftool bool) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	h, err := m.host()
	if err != nil {
		return err
	}
	if h.RemotePath == "" {
		m.notify.Bad("Error: " + ErrNoRemotePath.Error())
		return ErrNoRemotePath
	}
	if err := m.ensureFTP(ctx); err != nil {
		return err
	}

	changes, err := m.monitor.Check(ctx)
	if err != nil {
		m.notify.Bad("Error: unable to check local changes: " + err.Error())
		return err
	}
	if changes.Empty() {
		m.notify.Info("No files changed.")
		return nil
	}

	type step struct {
		kind  Kind
		files []string
		run   func(ctx context.Context, file string) error
	}
	steps := []step{
		{KindUpdated, changes.Updated, func(ctx context.Context, f string) error {
			_, err := m.UpdateRemote(ctx, f, useDifftool)
			return err
		}},
		{KindAdded, changes.Added, func(ctx context.Context, f string) error {
			_, err := m.UploadAdded(ctx, f)
			return err
		}},
		{KindDeleted, changes.Removed, func(ctx context.Context, f string) error {
			_, err := m.DeleteRemote(ctx, f)
			return err
		}},
	}

	for _, s := range steps {
		if kind != KindAll && kind != s.kind {
			continue
		}
		for _, f := range s.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.run(ctx, f); err != nil {
				return err
			}
			if err := m.monitor.Reset(ctx, f); err != nil {
				m.logger.Warn("mark synced failed", "file", f, "error", err)
			}
		}
	}
	return nil
}

func (m *Model) localPath(file string) string {
	return filepath.Join(m.cfg.LocalPath, filepath.FromSlash(file))
}

// UploadAdded copies a new local file to the server.
func (m *Model) UploadAdded(ctx context.Context, file string) (string, error) {
	if err := m.ensureFTP(ctx); err != nil {
		return "", err
	}
	dst, err := m.RemotePath(file)
	if err != nil {
		return "", err
	}

	if err := m.ftp.Upload(m.localPath(file), dst); err != nil {
		m.notify.Bad("Error: unable to upload: " + dst)
		return dst, err
	}
	m.notify.Good("Success: uploaded: " + dst)
	return dst, nil
}

// UpdateRemote replaces the server copy of a changed file. With useDifftool
// the server copy is downloaded first and opened beside the local file; the
// merged server copy is uploaded only if the tool changed it.
func (m *Model) UpdateRemote(ctx context.Context, file string, useDifftool bool) (string, error) {
	if err := m.ensureFTP(ctx); err != nil {
		return "", err
	}
	dst, err := m.RemotePath(file)
	if err != nil {
		return "", err
	}
	local := m.localPath(file)

	if !useDifftool {
		if err := m.ftp.Upload(local, dst); err != nil {
			m.notify.Bad("Error: unable to upload: " + dst)
			return dst, err
		}
		m.notify.Good("Success: updated: " + dst)
		return dst, nil
	}

	left, err := m.ftp.Download(dst, m.tempDir)
	if err != nil {
		m.notify.Bad("Error: unable to download: " + dst)
		return dst, err
	}
	defer os.Remove(left)

	before, err := os.Stat(left)
	if err != nil {
		return dst, err
	}
	if err := m.difftool(ctx, left, local); err != nil {
		m.notify.Bad("Error: difftool failed: " + err.Error())
		return dst, err
	}
	after, err := os.Stat(left)
	if err != nil {
		return dst, err
	}
	if after.ModTime().Equal(before.ModTime()) {
		m.notify.Bad("Error: " + ErrNotMerged.Error() + ": " + dst)
		return dst, ErrNotMerged
	}

	if err := m.ftp.Upload(left, dst); err != nil {
		m.notify.Bad("Error: unable to upload: " + dst)
		return dst, err
	}
	m.notify.Good("Success: merged and updated: " + dst)
	return dst, nil
}

// DeleteRemote removes the server copy of a file deleted locally.
func (m *Model) DeleteRemote(ctx context.Context, file string) (string, error) {
	if err := m.ensureFTP(ctx); err != nil {
		return "", err
	}
	dst, err := m.RemotePath(file)
	if err != nil {
		return "", err
	}

	if err := m.ftp.Delete(dst); err != nil {
		m.notify.Bad("Error: unable to delete: " + dst)
		return dst, err
	}
	m.notify.Good("Success: deleted: " + dst)
	return dst, nil
}

// ResetChanges marks the whole local tree as synced.
func (m *Model) ResetChanges(ctx context.Context) error {
	if err := m.monitor.ResetAll(ctx); err != nil {
		m.notify.Bad("Error: unable to reset changes: " + err.Error())
		return err
	}
	m.notify.Good("Success: all local files marked as synced.")
	return nil
}

func (m *Model) runDifftool(ctx context.Context, left, right string) error {
	tool := strings.Fields(m.cfg.Difftool)
	if len(tool) == 0 {
		return errors.New("no difftool configured")
	}
	args := append(append([]string(nil), tool[1:]...), left, right)
	cmd := exec.CommandContext(ctx, tool[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", tool[0], err)
	}
	return nil
}
