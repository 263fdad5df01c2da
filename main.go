// convo CLI entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/daemon"
	"github.com/batalabs/convo/internal/engine"
	"github.com/batalabs/convo/internal/store"
	"github.com/batalabs/convo/internal/tui"
	"github.com/batalabs/convo/internal/workspace"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

// exitError carries a process exit code out of a command's RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// flags are the persistent overrides shared by every subcommand.
type flags struct {
	daemonURL    string
	token        string
	dir          string
	commandsFile string
	logLevel     string
	noStore      bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "convo",
		Short:         "Tabbed multi-agent conversations with user-defined commands",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), f)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.daemonURL, "daemon-url", "", "Agent service address (overrides daemon.url)")
	pf.StringVar(&f.token, "token", "", "Auth token for the agent service")
	pf.StringVarP(&f.dir, "workspace", "w", "", "Workspace directory (default: current directory)")
	pf.StringVar(&f.commandsFile, "commands-file", "", "Command library YAML file (overrides commands.file)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&f.noStore, "no-store", false, "Do not open the local database")

	root.AddCommand(newExecCmd(f), newParseCmd(f), newCommandsCmd(f))
	return root
}

// preferences loads the preferences file and applies the environment and
// flag overrides, in that order.
func (f *flags) preferences() (config.Preferences, error) {
	prefs := config.LoadPreferences()
	prefs.ApplyEnv()
	if f.daemonURL != "" {
		prefs.DaemonURL = f.daemonURL
	}
	if f.token != "" {
		prefs.DaemonToken = f.token
	}
	if f.commandsFile != "" {
		prefs.CommandsFile = f.commandsFile
	}
	if f.logLevel != "" {
		if _, err := config.ParseLogLevel(f.logLevel); err != nil {
			return prefs, err
		}
		prefs.LogLevel = f.logLevel
	}
	return prefs, nil
}

// app is one engine with the resources it owns.
type app struct {
	eng    *engine.Engine
	store  *store.Store
	logger *zap.Logger
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// newApp builds an engine from the flags. With offline set no backend is
// configured, which keeps a run purely local.
func newApp(ctx context.Context, f *flags, stderr io.Writer, offline bool) (*app, error) {
	prefs, err := f.preferences()
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(prefs.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	dir := f.dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}
	ws := workspace.New(dir)

	a := &app{logger: logger}
	if !f.noStore {
		st, err := store.OpenStore()
		if err != nil {
			// The store only adds persistence; run without it.
			fmt.Fprintf(stderr, "warning: database unavailable: %v\n", err)
			logger.Warn("open store", zap.Error(err))
		} else {
			a.store = st
		}
	}

	opts := engine.Options{
		Store:     a.store,
		Workspace: ws,
		Shell:     workspace.Shell{Dir: ws.Root},
		Prefs:     prefs,
		Logger:    logger,
	}
	if !offline && prefs.DaemonURL != "" {
		client := daemon.NewClient(prefs.DaemonURL)
		client.SetAuthToken(prefs.DaemonToken)
		opts.Backend = client
	}
	a.eng = engine.New(opts)

	if err := a.eng.LoadCommands(ctx); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	return a, nil
}

func runTUI(ctx context.Context, f *flags) error {
	a, err := newApp(ctx, f, os.Stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.eng.Bootstrap(ctx); err != nil {
		// The first tab carries the error turn; local commands still work.
		a.logger.Warn("bootstrap", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.eng.Run(ctx) }()

	uiErr := tui.Run(ctx, a.eng, version)
	cancel()
	if err := <-runErr; err != nil {
		a.logger.Error("engine stopped", zap.Error(err))
		if uiErr == nil {
			uiErr = err
		}
	}
	if uiErr != nil {
		return fmt.Errorf("convo failed: %w", uiErr)
	}
	return nil
}
