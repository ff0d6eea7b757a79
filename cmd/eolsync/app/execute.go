package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentstation/eolsync/internal/cmd/output"
	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
	"github.com/agentstation/eolsync/pkg/reconciler"
)

// Execute runs the eolsync CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command. Running it without a
// subcommand performs one reconciliation pass.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "eolsync",
		Short:   "Sync end-of-life framework counts onto catalog services",
		Version: a.version,
		Long: `eolsync reads every framework and service entity from the Port catalog,
counts for each service how many related frameworks are in the EOL state,
and writes that count to the service's number_of_eol_packages property.

Credentials are read from PORT_API_KEY, or from PORT_CLIENT_ID and
PORT_CLIENT_SECRET, in the environment or a .env file.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setupCommand,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.Sync(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.ConfigFile, "config", "", "config file (default is $HOME/.eolsync.yaml)")
	flags.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolVarP(&a.flags.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.BoolVar(&a.flags.NoColor, "no-color", false, "disable colored output")
	flags.StringVarP(&a.flags.Format, "format", "o", "", "output format: table, json, yaml")
	flags.StringVar(&a.flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	rootCmd.Flags().BoolVar(&a.flags.DryRun, "dry-run", false, "compute counts without updating services")
	rootCmd.Flags().StringVar(&a.flags.Relation, "relation", "", "service relation holding framework identifiers (default \"framework\")")

	rootCmd.SetVersionTemplate("eolsync {{.Version}}\n")
	rootCmd.AddCommand(a.newVersionCommand())

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(_ *cobra.Command, _ []string) error {
	if a.flags.ConfigFile != "" {
		config, err := LoadConfig(a.flags.ConfigFile)
		if err != nil {
			return err
		}
		a.config = config
	}
	a.config.UpdateFromFlags(a.flags)

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return errors.NewConfigError("flags", err.Error(), err)
	}

	if !a.fixedLogger {
		a.logger = ConfigureGlobalLogger(a.config)
	}

	return nil
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "eolsync version %s\n", a.version)
			fmt.Fprintf(w, "commit: %s\n", a.commit)
			fmt.Fprintf(w, "built: %s\n", a.date)
			fmt.Fprintf(w, "built by: %s\n", a.builtBy)
			fmt.Fprintf(w, "go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Sync runs one reconciliation pass and writes the report to out.
// The success line goes to out after a table report and to errOut after a
// JSON or YAML report so the encoded document stays parseable. A failed
// pass is logged once with its error category and returned.
func (a *App) Sync(ctx context.Context, out, errOut io.Writer) error {
	ctx = logging.WithLogger(ctx, a.logger)
	ctx = logging.WithRunID(ctx, uuid.NewString())
	logger := logging.FromContext(ctx)

	catalog, err := a.Catalog()
	if err != nil {
		return a.fail(ctx, err)
	}

	rec, err := reconciler.New(catalog,
		reconciler.WithRelation(a.config.Relation),
		reconciler.WithServiceBlueprint(a.config.ServiceBlueprint),
		reconciler.WithFrameworkBlueprint(a.config.FrameworkBlueprint),
		reconciler.WithProperty(a.config.Property),
		reconciler.WithDryRun(a.config.DryRun),
	)
	if err != nil {
		return a.fail(ctx, err)
	}

	result, err := rec.Run(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	format := output.DetectFormat(a.config.Format)
	if err := output.FormatResult(out, result, format); err != nil {
		return a.fail(ctx, errors.WrapUnexpected("write report", err))
	}

	if err := result.Err(); err != nil {
		return a.fail(ctx, err)
	}

	if result.DryRun {
		logger.Info().Msg("Dry run, no services were updated")
		return nil
	}

	if format != output.FormatTable {
		out = errOut
	}
	_, _ = fmt.Fprintln(out, constants.SuccessMessage)
	return nil
}

// loggedError marks an error whose diagnostic has already been logged.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

// fail logs a classified diagnostic for err and returns it.
func (a *App) fail(ctx context.Context, err error) error {
	err = errors.WrapUnexpected("sync", err)
	logging.FromContext(ctx).Error().
		Err(err).
		Str("category", string(errors.Classify(err))).
		Msg("Sync failed")
	return &loggedError{err: err}
}

// ExitOnError reports an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(exitMessage(err))
		os.Exit(1)
	}
}

// exitMessage is the line printed before exiting, or "" when the failure
// was already logged.
func exitMessage(err error) string {
	var logged *loggedError
	if errors.As(err, &logged) {
		return ""
	}
	return "Error: " + err.Error() + "\n"
}
