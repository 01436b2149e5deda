package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smnsjas/telsync/app"
)

type feature struct {
	key   string
	label string
	run   func(ctx context.Context, m *app.Model) error
}

func (c *cli) features() []feature {
	return []feature{
		{"0", "Exit", nil},
		{"1", "List changed files", func(ctx context.Context, m *app.Model) error {
			_, err := m.ListChanges(ctx)
			return err
		}},
		{"2", "Transfer files", c.interactiveTransfer},
		{"3", "Reset file snapshot", func(ctx context.Context, m *app.Model) error {
			return m.ResetChanges(ctx)
		}},
		{"4", "Remote shell", c.remoteShell},
	}
}

// runInteractive shows the menu until the user exits or input ends.
func (c *cli) runInteractive(ctx context.Context) error {
	return c.withModel(func(m *app.Model) error {
		features := c.features()
		fmt.Fprintln(c.stdout, c.title("INTERACTIVE MODE"))
		for {
			h, err := m.Host()
			if err == nil {
				fmt.Fprintln(c.stdout, "Current host: "+h.Name)
			}
			for _, f := range features {
				fmt.Fprintf(c.stdout, "[%s] - %s\n", f.key, f.label)
			}
			fmt.Fprint(c.stdout, "> ")

			choice, err := c.readLine()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			f, ok := pick(features, strings.TrimSpace(choice))
			if !ok {
				fmt.Fprintln(c.stdout, "Unsupported option")
				continue
			}
			if f.run == nil {
				return nil
			}
			if err := f.run(ctx, m); err != nil {
				c.logger.Debug("menu action failed", "option", f.label, "error", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}

func pick(features []feature, key string) (feature, bool) {
	for _, f := range features {
		if f.key == key {
			return f, true
		}
	}
	return feature{}, false
}

// interactiveTransfer asks before each file. A failed file is reported and
// skipped.
func (c *cli) interactiveTransfer(ctx context.Context, m *app.Model) error {
	h, err := m.Host()
	if err != nil {
		return err
	}
	if h.RemotePath == "" {
		fmt.Fprintln(c.stdout, "Error: "+app.ErrNoRemotePath.Error())
		return app.ErrNoRemotePath
	}

	changes, err := m.Monitor().Check(ctx)
	if err != nil {
		return err
	}
	if changes.Empty() {
		fmt.Fprintln(c.stdout, "No files changed.")
		return nil
	}

	for _, file := range changes.Added {
		ok, err := c.confirm("Upload file " + file + "?")
		if err != nil {
			return err
		}
		if ok {
			if _, err := m.UploadAdded(ctx, file); err == nil {
				c.markSynced(ctx, m, file)
			}
		}
	}

	for _, file := range changes.Updated {
		ok, err := c.confirm("Use difftool for " + file + "?")
		if err != nil {
			return err
		}
		if ok {
			if _, err := m.UpdateRemote(ctx, file, true); err == nil {
				c.markSynced(ctx, m, file)
				continue
			}
		}
		ok, err = c.confirm("Then simply overwrite remote with local?")
		if err != nil {
			return err
		}
		if ok {
			if _, err := m.UpdateRemote(ctx, file, false); err == nil {
				c.markSynced(ctx, m, file)
			}
		}
	}

	for _, file := range changes.Removed {
		ok, err := c.confirm("Delete remote file " + file + "?")
		if err != nil {
			return err
		}
		if ok {
			if _, err := m.DeleteRemote(ctx, file); err == nil {
				c.markSynced(ctx, m, file)
			}
		}
	}
	return nil
}

func (c *cli) markSynced(ctx context.Context, m *app.Model, file string) {
	if err := m.Monitor().Reset(ctx, file); err != nil {
		c.logger.Warn("mark synced failed", "file", file, "error", err)
	}
}

// remoteShell forwards lines to the server shell until "exit" or end of
// input.
func (c *cli) remoteShell(ctx context.Context, m *app.Model) error {
	fmt.Fprintln(c.stdout, c.muted("Type exit to return to the menu."))
	for {
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "exit" {
			return nil
		}
		if _, err := m.Exec(ctx, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
