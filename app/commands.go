package app

import (
	"context"

	"github.com/smnsjas/telsync/session"
)

// interruptLine is sent as a bare Ctrl-C to stop a foreground job.
const interruptLine = "\x03"

func (m *Model) run(ctx context.Context, line string, opts ...session.CommandOption) (session.Result, error) {
	if m.echo != nil {
		opts = append(opts, session.WithEcho(m.echo))
	}
	return m.shell.Run(ctx, line, opts...)
}

// Exec runs one line in the remote shell, echoing its output.
func (m *Model) Exec(ctx context.Context, line string) (session.Result, error) {
	if err := m.ensureTelnet(ctx); err != nil {
		return session.Result{}, err
	}
	return m.run(ctx, line)
}

// Restart stops and boots application servers. "env" restarts the whole
// environment; anything else names one server group.
func (m *Model) Restart(ctx context.Context, arg string) error {
	if err := m.ensureTelnet(ctx); err != nil {
		return err
	}

	lines := []string{"tmshutdown -s " + arg, "tmboot -s " + arg}
	if arg == "env" {
		lines = []string{"tmshutdown -y", "tmboot -y"}
	}

	m.notify.Info("Restarting " + arg + "...")
	for _, line := range lines {
		res, err := m.run(ctx, line)
		if err != nil {
			m.notify.Bad("Error: " + line + ": " + err.Error())
			return err
		}
		if res.TimedOut {
			m.logger.Warn("restart step timed out", "line", line)
		}
	}
	m.notify.Good("Success: restarted " + arg)
	return nil
}

// Script sources a shell script on the server from the home directory.
func (m *Model) Script(ctx context.Context, name string) error {
	if err := m.ensureTelnet(ctx); err != nil {
		return err
	}

	// cd is run as a full command so its prompt is consumed before the
	// script's output is read.
	if home := m.shell.Home(); home != "" && home != m.shell.Pwd() {
		if _, err := m.shell.Run(ctx, "cd "+home); err != nil {
			m.notify.Bad("Error: unable to change to " + home + ": " + err.Error())
			return err
		}
	}

	m.notify.Info("Running script " + name + "...")
	if _, err := m.run(ctx, ". "+name); err != nil {
		m.notify.Bad("Error: script " + name + ": " + err.Error())
		return err
	}
	return nil
}

// Tlog captures the server trace log into filename until stop is closed,
// then downloads the file into the temp directory and removes it from the
// server. It returns the local path.
func (m *Model) Tlog(ctx context.Context, filename string, stop <-chan struct{}) (string, error) {
	if err := m.ensureTelnet(ctx); err != nil {
		return "", err
	}

	m.notify.Info("Writing trace log to " + filename + ", stop to download it.")
	if _, err := m.shell.Run(ctx, "tlog > "+filename, session.FireAndForget()); err != nil {
		m.notify.Bad("Error: unable to start tlog: " + err.Error())
		return "", err
	}

	select {
	case <-stop:
	case <-ctx.Done():
	}

	// The capture must stop even if ctx was cancelled.
	stopCtx := context.WithoutCancel(ctx)
	if _, err := m.shell.Run(stopCtx, interruptLine, session.FireAndForget()); err != nil {
		m.notify.Bad("Error: unable to stop tlog: " + err.Error())
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := m.ensureFTP(ctx); err != nil {
		return "", err
	}
	src, err := m.remoteFile(filename)
	if err != nil {
		return "", err
	}
	local, err := m.ftp.Download(src, m.tempDir)
	if err != nil {
		m.notify.Bad("Error: unable to download: " + src)
		return "", err
	}
	if err := m.ftp.Delete(src); err != nil {
		m.logger.Warn("remove remote trace log failed", "file", src, "error", err)
	}
	m.notify.Good("Success: trace log saved to " + local)
	return local, nil
}
