// Package cli is the command-line front end of the library ledger. Commands
// only parse arguments, call the library manager and print results.
package cli

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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"library-ledger/config"
	"library-ledger/library"
)

// app carries what every command needs. The manager is opened lazily by the
// root command's pre-run hook and closed by Execute.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	mgr    *library.LibraryManager
	logger *slog.Logger

	configFile string

	in     io.Reader
	lines  *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		v:      viper.New(),
		in:     in,
		lines:  bufio.NewReader(in),
		out:    out,
		errOut: errOut,
	}
}

// Execute runs the command line args and returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := newApp(in, out, errOut)
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}
	fmt.Fprintf(errOut, "Error: %v\n", err)
	if errors.Is(err, errAuditFailed) {
		return 2
	}
	return 1
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Track book copies, members and borrow records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./library.yaml or $HOME/.library/library.yaml)")
	flags.String("db", "library.db", "path to the SQLite database")
	flags.Duration("busy-timeout", 0, "how long a writer waits for the database lock")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.Bool("json", false, "print results as JSON")
	a.bindFlags(flags, map[string]string{
		config.KeyDBPath:      "db",
		config.KeyBusyTimeout: "busy-timeout",
		config.KeyLogLevel:    "log-level",
		config.KeyLogFormat:   "log-format",
		config.KeyOutputJSON:  "json",
	})

	root.AddCommand(
		a.bookCommand(),
		a.memberCommand(),
		a.borrowCommand(),
		a.returnCommand(),
		a.reportCommand(),
		a.auditCommand(),
		a.importCommand(),
		a.demoCommand(),
	)
	return root
}

// bindFlags binds each flag to its config key. A flag only overrides the
// config file and environment when it is set on the command line.
func (a *app) bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (a *app) open() error {
	if a.mgr != nil {
		return nil
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	mgr, err := library.NewLibraryManager(cfg.DB.Path,
		library.WithLogger(logger),
		library.WithBusyTimeout(cfg.DB.BusyTimeout),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.cfg, a.logger, a.mgr = cfg, logger, mgr
	return nil
}

func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

func (a *app) jsonOutput() bool { return a.cfg != nil && a.cfg.Output.JSON }

// readPassword reads a password with masking when stdin is a terminal and
// as a plain line otherwise.
func (a *app) readPassword(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out) // Add newline after password input
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytePassword)), nil
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
