package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/deduplify/internal/config"
	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/logger"
	"github.com/Ning0612/deduplify/internal/progress"
	"github.com/Ning0612/deduplify/internal/service"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// app holds what every subcommand shares
type app struct {
	configPath string
	verbose    bool
	logFile    string
	logFormat  string
	noProgress bool

	cfg *config.Config
	log logger.Logger

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "deduplify",
		Short:         "Find files with identical content and delete the redundant copies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: config.yaml in ., ./configs or the user config dir)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr at debug level instead of the log file")
	pf.StringVar(&a.logFile, "log-file", "", "log file path (default "+config.DefaultLogFile+")")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&a.noProgress, "no-progress", false, "do not print the progress line")

	root.AddCommand(
		newHashCmd(a),
		newCompareCmd(a),
		newCleanCmd(a),
		newHistoryCmd(a),
		newListCmd(a),
		newUnlockCmd(a),
	)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root
}

// setup loads configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File = a.logFile
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := logger.New(cfg.LoggerConfig(a.verbose))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	a.cfg = cfg
	a.log = log
	a.log.Debug("configuration loaded", "index", cfg.Index, "concurrency", cfg.Concurrency)
	return nil
}

func (a *app) teardown() error {
	if a.log == nil {
		return nil
	}
	return a.log.Shutdown()
}

// reporter returns the progress line writer, or nil when disabled
func (a *app) reporter(label string) progress.Reporter {
	if a.noProgress {
		return nil
	}
	return progress.NewLineReporter(a.stderr, label)
}

func (a *app) service(label string) *service.DedupService {
	return service.NewDedupService(
		service.WithLogger(a.log),
		service.WithReporter(a.reporter(label)),
	)
}

// endProgress terminates the progress line
func (a *app) endProgress() {
	if !a.noProgress {
		fmt.Fprintln(a.stderr)
	}
}

// exitCode maps a run error to the process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrConfigInvalid), errors.Is(err, domain.ErrConfigNotFound):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Execute runs the CLI with args and returns the exit code
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		a.teardown()
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitOK
}
