package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smnsjas/telsync/config"
)

func newHostCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Manage host entries in the config file",
	}
	cmd.AddCommand(newHostListCmd(c), newHostAddCmd(c), newHostRemoveCmd(c), newHostDefaultCmd(c))
	return cmd
}

func newHostListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured hosts",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			for _, h := range cfg.Hosts {
				mark := "  "
				if h.Name == cfg.DefaultHost {
					mark = "* "
				}
				line := mark + h.Name + " " + c.muted(h.Username+"@"+h.Name)
				if h.RemotePath != "" {
					line += c.muted(" remote_path=" + h.RemotePath)
				}
				fmt.Fprintln(c.stdout, line)
			}
			return nil
		},
	}
}

func newHostAddCmd(c *cli) *cobra.Command {
	var h config.Host
	var makeDefault bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a host entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			h.Name = args[0]
			if err := cfg.AddHost(h); err != nil {
				return err
			}
			if makeDefault {
				if err := cfg.SetDefaultHost(h.Name); err != nil {
					return err
				}
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Added host %s to %s\n", h.Name, cfg.File())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&h.Username, "user", "u", "", "login name")
	f.StringVarP(&h.Password, "password", "p", "", "password (prompted for when empty)")
	f.StringVarP(&h.RemotePath, "remote-path", "r", "", "upload directory relative to the FTP login directory")
	f.StringVarP(&h.Script, "script", "s", "", "script sourced after login")
	f.BoolVar(&makeDefault, "default", false, "make this the default host")
	return cmd
}

func newHostRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a host entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.DeleteHost(args[0]); err != nil {
				return err
			}
			return cfg.Save()
		},
	}
}

func newHostDefaultCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Select the host used when --host is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetDefaultHost(args[0]); err != nil {
				return err
			}
			return cfg.Save()
		},
	}
}

func newInitCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path := config.Path(c.cfgPath)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().SaveAs(path); err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, "Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
