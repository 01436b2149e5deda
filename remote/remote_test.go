package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory FTP server with a single current directory.
type fakeConn struct {
	files    map[string]string
	cwd      string
	wd       string
	mode     ftp.TransferType
	loginErr error
	noopErr  error
	quit     bool
	dirs     []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{files: map[string]string{}, cwd: "/home/user", wd: "/home/user"}
}

func (f *fakeConn) abs(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return strings.TrimSuffix(f.cwd, "/") + "/" + p
}

func (f *fakeConn) Login(string, string) error         { return f.loginErr }
func (f *fakeConn) CurrentDir() (string, error)        { return f.wd, nil }
func (f *fakeConn) Type(t ftp.TransferType) error      { f.mode = t; return nil }
func (f *fakeConn) NoOp() error                        { return f.noopErr }
func (f *fakeConn) Quit() error                        { f.quit = true; return nil }
func (f *fakeConn) Retr(string) (*ftp.Response, error) { return nil, errors.New("use retriever") }

func (f *fakeConn) ChangeDir(p string) error {
	f.dirs = append(f.dirs, p)
	if strings.Contains(p, "missing") {
		return errors.New("550 no such directory")
	}
	f.cwd = f.abs(p)
	return nil
}

func (f *fakeConn) Stor(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[f.abs(p)] = string(data)
	return nil
}

func (f *fakeConn) Delete(p string) error {
	if _, ok := f.files[f.abs(p)]; !ok {
		return errors.New("550 file not found")
	}
	delete(f.files, f.abs(p))
	return nil
}

func (f *fakeConn) retrieve(_ conn, p string) (io.ReadCloser, error) {
	data, ok := f.files[f.abs(p)]
	if !ok {
		return nil, errors.New("550 file not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func dialFake(t *testing.T, f *fakeConn, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, func(o *options) {
		o.dialConn = func(context.Context, string, time.Duration) (conn, error) { return f, nil }
	})
	c, err := Dial(context.Background(), "devbox", "user", "secret", opts...)
	require.NoError(t, err)
	c.retr = f.retrieve
	return c
}

func TestDial(t *testing.T) {
	f := newFakeConn()
	var addr string
	c, err := Dial(context.Background(), "devbox", "user", "secret", WithPort(2121), func(o *options) {
		o.dialConn = func(_ context.Context, a string, _ time.Duration) (conn, error) {
			addr = a
			return f, nil
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "devbox:2121", addr)
	assert.Equal(t, "/home/user/", c.WorkingDir())
	assert.Equal(t, ftp.TransferTypeASCII, f.mode)
	assert.True(t, c.Alive())

	f.noopErr = errors.New("421 timeout")
	assert.False(t, c.Alive())

	require.NoError(t, c.Close())
	assert.True(t, f.quit)
}

func TestDial_Binary(t *testing.T) {
	f := newFakeConn()
	dialFake(t, f, WithBinary())
	assert.Equal(t, ftp.TransferTypeBinary, f.mode)
}

func TestDial_Errors(t *testing.T) {
	refused := errors.New("connection refused")
	_, err := Dial(context.Background(), "devbox", "user", "secret", func(o *options) {
		o.dialConn = func(context.Context, string, time.Duration) (conn, error) { return nil, refused }
	})
	assert.ErrorIs(t, err, refused)

	f := newFakeConn()
	f.loginErr = errors.New("530 login incorrect")
	_, err = Dial(context.Background(), "devbox", "user", "bad", func(o *options) {
		o.dialConn = func(context.Context, string, time.Duration) (conn, error) { return f, nil }
	})
	assert.ErrorIs(t, err, f.loginErr)
	assert.True(t, f.quit, "connection left open after failed login")
}

func TestUploadDownloadDelete(t *testing.T) {
	f := newFakeConn()
	c := dialFake(t, f)

	local := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(local, []byte("int main;"), 0o644))

	remote := "/home/user/app/src/main.c"
	require.NoError(t, c.Upload(local, remote))
	assert.Equal(t, "int main;", f.files[remote])
	assert.Equal(t, []string{"/home/user/app/src/"}, f.dirs)

	dir := filepath.Join(t.TempDir(), "temp")
	got, err := c.Download(remote, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "main.c"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("int main;"), data))

	require.NoError(t, c.Delete(remote))
	assert.NotContains(t, f.files, remote)
	assert.Error(t, c.Delete(remote))
}

func TestUpload_Errors(t *testing.T) {
	f := newFakeConn()
	c := dialFake(t, f)

	assert.Error(t, c.Upload(filepath.Join(t.TempDir(), "absent.c"), "/x/absent.c"))

	local := filepath.Join(t.TempDir(), "a.c")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))
	err := c.Upload(local, "/missing/a.c")
	assert.ErrorContains(t, err, "change directory")
}

func TestDownload_Missing(t *testing.T) {
	f := newFakeConn()
	c := dialFake(t, f)

	dir := t.TempDir()
	_, err := c.Download("/nowhere/x.log", dir)
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
