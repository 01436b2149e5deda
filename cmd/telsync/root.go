package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/smnsjas/telsync/app"
	"github.com/smnsjas/telsync/config"
)

// cli holds the streams and global flags shared by every command.
type cli struct {
	stdin  io.Reader
	in     *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	cfgPath string
	host    string
	verbose bool

	logger *slog.Logger
	// extra model options, used by tests to replace the network
	modelOpts []app.Option
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	return &cli{
		stdin:  stdin,
		in:     bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// execute runs the command line and returns the exit code.
func execute(ctx context.Context, c *cli, args []string) int {
	root := newRootCmd(c)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "telsync",
		Short: "Sync a local source tree to a remote server over FTP and Telnet",
		Long: `telsync watches a local source tree and pushes changed files to a
remote application server over FTP. It also drives the server's shell
over Telnet to run scripts, restart servers and capture trace logs.

Run without a subcommand for the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runInteractive(cmd.Context())
		},
	}
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfgPath, "config", "c", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	flags.StringVarP(&c.host, "host", "H", "", "host entry to use instead of default_host")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log protocol detail to stderr")

	root.AddCommand(
		newListCmd(c),
		newTransferCmd(c),
		newResetCmd(c),
		newScriptCmd(c),
		newRestartCmd(c),
		newTlogCmd(c),
		newExecCmd(c),
		newInteractiveCmd(c),
		newHostCmd(c),
		newInitCmd(c),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	return config.Load(config.Path(c.cfgPath))
}

// model loads the config, asks for a missing password and builds the app.
func (c *cli) model() (*app.Model, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	name := c.host
	if name == "" {
		name = cfg.DefaultHost
	}
	for i := range cfg.Hosts {
		if cfg.Hosts[i].Name != name || cfg.Hosts[i].Password != "" {
			continue
		}
		pw, err := c.readPassword(fmt.Sprintf("Password for %s@%s: ", cfg.Hosts[i].Username, name))
		if err != nil {
			return nil, err
		}
		cfg.Hosts[i].Password = pw
	}

	opts := []app.Option{
		app.WithHost(c.host),
		app.WithLogger(c.logger),
		app.WithNotifier(newNotifier(c.stdout)),
		app.WithEcho(c.stdout),
	}
	return app.New(cfg, append(opts, c.modelOpts...)...)
}

func (c *cli) readPassword(prompt string) (string, error) {
	fmt.Fprint(c.stdout, prompt)
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.stdout)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	return c.readLine()
}

// readLine returns the next input line without its line ending. At end of
// input it returns io.EOF.
func (c *cli) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a y/n question; anything but y or yes is no.
func (c *cli) confirm(question string) (bool, error) {
	fmt.Fprint(c.stdout, question+" [y/n]: ")
	answer, err := c.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// withModel builds the model, runs fn and closes the connections.
func (c *cli) withModel(fn func(m *app.Model) error) error {
	m, err := c.model()
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			c.logger.Debug("close", "error", err)
		}
	}()
	return fn(m)
}
