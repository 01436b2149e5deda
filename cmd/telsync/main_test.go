package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/telsync/config"
)

type run struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) run {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	c := newCLI(strings.NewReader(stdin), &stdout, &stderr)
	code := execute(context.Background(), c, args)
	return run{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LocalPath = filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(cfg.LocalPath, 0o755))
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "telsync.toml")
	require.NoError(t, cfg.SaveAs(path))
	return path
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telsync.toml")

	r := runCLI(t, "", "init", "--config", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "devbox", cfg.DefaultHost)

	r = runCLI(t, "", "init", "--config", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "already exists")

	r = runCLI(t, "", "init", "--config", path, "--force")
	assert.Equal(t, 0, r.code, r.stderr)
}

func TestHostCommands(t *testing.T) {
	path := writeConfig(t, nil)

	r := runCLI(t, "", "host", "add", "build", "-c", path, "-u", "bob", "-p", "pw", "-r", "app", "--default")
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, "", "host", "list", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "  devbox")
	assert.Contains(t, r.stdout, "* build bob@build remote_path=app")

	r = runCLI(t, "", "host", "rm", "devbox", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, "", "host", "default", "devbox", "-c", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "host not found")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, cfg.HostNames())
	assert.Equal(t, "build", cfg.DefaultHost)
}

func TestList(t *testing.T) {
	path := writeConfig(t, nil)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	r := runCLI(t, "", "list", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "No files changed.")

	require.NoError(t, os.WriteFile(filepath.Join(cfg.LocalPath, "new.c"), []byte("x"), 0o644))
	r = runCLI(t, "", "list", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "ADDED:\n  new.c")

	r = runCLI(t, "", "reset", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	r = runCLI(t, "", "list", "-c", path)
	assert.Contains(t, r.stdout, "No files changed.")
}

func TestList_UnknownHost(t *testing.T) {
	path := writeConfig(t, nil)
	r := runCLI(t, "", "list", "-c", path, "--host", "nope")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "host not found")
}

func TestTransfer_BadKind(t *testing.T) {
	path := writeConfig(t, nil)
	r := runCLI(t, "", "transfer", "moved", "-c", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unknown transfer kind")
}

func TestTransfer_NoRemotePath(t *testing.T) {
	path := writeConfig(t, nil)
	r := runCLI(t, "", "transfer", "all", "-c", path)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "remote_path")
}

func TestPasswordPrompt(t *testing.T) {
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.Hosts[0].Password = ""
	})

	r := runCLI(t, "hunter2\n", "list", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Password for username@devbox: ")
}

func TestInteractive(t *testing.T) {
	path := writeConfig(t, nil)

	r := runCLI(t, "1\n9\n2\n0\n", "-c", path)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "INTERACTIVE MODE")
	assert.Contains(t, r.stdout, "Current host: devbox")
	assert.Contains(t, r.stdout, "[4] - Remote shell")
	assert.Contains(t, r.stdout, "No files changed.")
	assert.Contains(t, r.stdout, "Unsupported option")
	assert.Contains(t, r.stdout, "Error: host has no remote_path")
}

func TestInteractive_EndOfInput(t *testing.T) {
	path := writeConfig(t, nil)
	r := runCLI(t, "", "interactive", "-c", path)
	assert.Equal(t, 0, r.code, r.stderr)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	c := newCLI(strings.NewReader("y\nno\nYES\r\n"), &out, &out)

	for _, want := range []bool{true, false, true} {
		got, err := c.confirm("Go?")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := c.confirm("Go?")
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Go? [y/n]: ")
}
