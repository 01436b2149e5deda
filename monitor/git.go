package monitor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitStrategy reports uncommitted changes in the working tree, untracked
// files included.
type GitStrategy struct{}

// Check implements Strategy.
func (GitStrategy) Check(ctx context.Context, root string) (Changes, error) {
	prefix, err := runGit(ctx, root, "rev-parse", "--show-prefix")
	if err != nil {
		return Changes{}, err
	}
	out, err := runGit(ctx, root, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return Changes{}, err
	}
	return parseStatus(out, strings.TrimSpace(prefix)), nil
}

// GitBranchStrategy reports what the current branch changed since it forked
// from Base.
type GitBranchStrategy struct {
	Base string
}

// Check implements Strategy.
func (g GitBranchStrategy) Check(ctx context.Context, root string) (Changes, error) {
	if g.Base == "" {
		return Changes{}, fmt.Errorf("git-branch monitor: no branch to compare with")
	}
	out, err := runGit(ctx, root, "diff", "--name-status", "-z", "--relative", g.Base+"...HEAD")
	if err != nil {
		return Changes{}, err
	}
	return parseNameStatus(out), nil
}

// CurrentBranch returns the branch checked out in root.
func (GitBranchStrategy) CurrentBranch(ctx context.Context, root string) (string, error) {
	out, err := runGit(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseStatus reads `git status --porcelain=v1 -z`. Paths are reported
// relative to the repository top; only those under prefix are kept.
func parseStatus(out, prefix string) Changes {
	var c Changes
	keep := func(list *[]string, path string) {
		if rel, ok := strings.CutPrefix(path, prefix); ok && rel != "" {
			*list = append(*list, rel)
		}
	}

	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y, path := entry[0], entry[1], entry[3:]

		switch {
		case x == '?' && y == '?':
			keep(&c.Added, path)
		case x == 'R' || y == 'R':
			// The original path follows as its own field.
			if i+1 < len(fields) {
				i++
				keep(&c.Removed, fields[i])
			}
			keep(&c.Added, path)
		case x == 'C' || y == 'C':
			if i+1 < len(fields) {
				i++
			}
			keep(&c.Added, path)
		case x == 'D' || y == 'D':
			keep(&c.Removed, path)
		case x == 'A':
			keep(&c.Added, path)
		default:
			keep(&c.Updated, path)
		}
	}
	c.sort()
	return c
}

// parseNameStatus reads `git diff --name-status -z`.
func parseNameStatus(out string) Changes {
	var c Changes
	fields := strings.Split(out, "\x00")
	for i := 0; i+1 < len(fields); i += 2 {
		status, path := fields[i], fields[i+1]
		if status == "" {
			continue
		}
		switch status[0] {
		case 'A':
			c.Added = append(c.Added, path)
		case 'D':
			c.Removed = append(c.Removed, path)
		case 'R':
			if i+2 < len(fields) {
				c.Removed = append(c.Removed, path)
				c.Added = append(c.Added, fields[i+2])
				i++
			}
		case 'C':
			if i+2 < len(fields) {
				c.Added = append(c.Added, fields[i+2])
				i++
			}
		default:
			c.Updated = append(c.Updated, path)
		}
	}
	c.sort()
	return c
}
