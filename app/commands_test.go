package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestart(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	ctx := context.Background()

	require.NoError(t, fx.model.Restart(ctx, "env"))
	require.NoError(t, fx.model.Restart(ctx, "GRP1"))

	assert.Equal(t, []string{
		"tmshutdown -y", "tmboot -y",
		"tmshutdown -s GRP1", "tmboot -s GRP1",
	}, fx.shell.sent())
	assert.Equal(t, []string{"profile.sh"}, fx.shell.scripts, "connected more than once")
}

func TestRestart_StopsOnError(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.runErr = errors.New("broken pipe")

	assert.Error(t, fx.model.Restart(context.Background(), "env"))
	assert.Equal(t, []string{"tmshutdown -y"}, fx.shell.sent())
}

func TestScriptAndExec(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.pwd = "/home/user"
	ctx := context.Background()

	require.NoError(t, fx.model.Script(ctx, "deploy.sh"))
	res, err := fx.model.Exec(ctx, "ls")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "ls")
	assert.Equal(t, []string{". deploy.sh", "ls"}, fx.shell.sent())
}

func TestScript_ChangesHomeFirst(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.pwd = "/tmp"
	ctx := context.Background()

	require.NoError(t, fx.model.Script(ctx, "deploy.sh"))
	assert.Equal(t, []string{"cd /home/user", ". deploy.sh"}, fx.shell.sent())
	assert.Equal(t, "/home/user", fx.shell.Pwd())

	require.NoError(t, fx.model.Script(ctx, "deploy.sh"))
	assert.Equal(t, []string{"cd /home/user", ". deploy.sh", ". deploy.sh"}, fx.shell.sent())
}

func TestScript_CdFails(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.pwd = "/tmp"
	fx.shell.runErr = errors.New("closed")

	err := fx.model.Script(context.Background(), "deploy.sh")
	assert.Error(t, err)
	assert.Equal(t, []string{"cd /home/user"}, fx.shell.sent())
}

func TestExec_ConnectFails(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.connectErr = errors.New("refused")

	_, err := fx.model.Exec(context.Background(), "ls")
	assert.Error(t, err)
	assert.Empty(t, fx.shell.sent())
}

func TestTlog(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	fx.shell.pwd = "/home/user/run"
	fx.store.files["/home/user/run/trace.log"] = "trace"

	stop := make(chan struct{})
	done := make(chan struct{})
	var local string
	var err error
	go func() {
		defer close(done)
		local, err = fx.model.Tlog(context.Background(), "trace.log", stop)
	}()

	require.Eventually(t, func() bool { return len(fx.shell.sent()) == 1 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done

	require.NoError(t, err)
	assert.Equal(t, []string{"tlog > trace.log", "\x03"}, fx.shell.sent())
	assert.Equal(t, filepath.Join(fx.model.tempDir, "trace.log"), local)
	data, readErr := os.ReadFile(local)
	require.NoError(t, readErr)
	assert.Equal(t, "trace", string(data))
	assert.NotContains(t, fx.store.files, "/home/user/run/trace.log")
}

func TestTlog_Cancelled(t *testing.T) {
	fx := newFixture(t, testConfig(t, "app"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.model.Tlog(ctx, "trace.log", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
