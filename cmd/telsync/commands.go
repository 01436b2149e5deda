package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smnsjas/telsync/app"
)

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local files changed since the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withModel(func(m *app.Model) error {
				_, err := m.ListChanges(cmd.Context())
				return err
			})
		},
	}
}

func newTransferCmd(c *cli) *cobra.Command {
	var difftool bool
	cmd := &cobra.Command{
		Use:   "transfer <added|updated|deleted|all>",
		Short: "Push local changes to the server over FTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := app.ParseKind(args[0])
			if err != nil {
				return err
			}
			return c.withModel(func(m *app.Model) error {
				return m.Transfer(cmd.Context(), kind, difftool)
			})
		},
	}
	cmd.Flags().BoolVarP(&difftool, "difftool", "d", false, "merge updated files with the configured difftool before upload")
	return cmd
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Mark every local file as synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withModel(func(m *app.Model) error {
				return m.ResetChanges(cmd.Context())
			})
		},
	}
}

func newScriptCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "script <name>",
		Short: "Source a shell script on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withModel(func(m *app.Model) error {
				return m.Script(cmd.Context(), args[0])
			})
		},
	}
}

func newRestartCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <env|group>",
		Short: "Restart the whole environment or one server group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withModel(func(m *app.Model) error {
				return m.Restart(cmd.Context(), args[0])
			})
		},
	}
}

func newTlogCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tlog <file>",
		Short: "Capture the server trace log until Enter is pressed, then download it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withModel(func(m *app.Model) error {
				return c.tlog(cmd, m, args[0])
			})
		},
	}
}

func (c *cli) tlog(cmd *cobra.Command, m *app.Model, file string) error {
	stop := make(chan struct{})
	go func() {
		_, _ = c.readLine()
		close(stop)
	}()
	_, err := m.Tlog(cmd.Context(), file, stop)
	return err
}

func newExecCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command...>",
		Short: "Run one command in the server shell",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withModel(func(m *app.Model) error {
				res, err := m.Exec(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				if res.TimedOut {
					return fmt.Errorf("command %q timed out", strings.Join(args, " "))
				}
				return nil
			})
		},
	}
}

func newInteractiveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Open the interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runInteractive(cmd.Context())
		},
	}
}
