package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"budgetsync/internal/api"
	"budgetsync/internal/bootstrap"
	"budgetsync/internal/cli"
	"budgetsync/internal/log"
	"budgetsync/internal/session"
)

// appFactory builds a fresh, not yet started App for one command.
type appFactory func(ctx context.Context) (*bootstrap.App, error)

var errNotSignedIn = errors.New("not signed in: run 'budgetsync login' first")

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(loadApp).Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(factory appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetsync",
		Short:         "Manage budgets and categories against the budget API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLoginCmd(factory))
	root.AddCommand(newRegisterCmd(factory))
	root.AddCommand(newLogoutCmd(factory))
	root.AddCommand(newWhoamiCmd(factory))
	root.AddCommand(newSettingsCmd(factory))
	root.AddCommand(newResendVerificationCmd(factory))
	root.AddCommand(newBudgetsCmd(factory))
	root.AddCommand(newCategoriesCmd(factory))
	root.AddCommand(newSyncCmd(factory))
	root.AddCommand(newWatchCmd(factory))
	root.AddCommand(newTailCmd(factory))
	return root
}

func loadApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cli.SetupLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, logger)
}

// withApp builds the app, runs the bootstrap sequence and hands the app to fn.
// A failed initial category load is logged; the command still runs.
func withApp(cmd *cobra.Command, factory appFactory, fn func(context.Context, *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := factory(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		app.Logger.WithComponent(log.ComponentCLI).Warn("Startup load incomplete", log.FieldError, err)
	}
	return fn(ctx, app)
}

// withUser is withApp for commands that need a restored session.
func withUser(cmd *cobra.Command, factory appFactory, fn func(context.Context, *bootstrap.App) error) error {
	return withApp(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
		if app.Session.Phase() != session.Authenticated {
			return errNotSignedIn
		}
		return fn(ctx, app)
	})
}

// printError renders err the way users should see it: server validation
// messages field by field, transport faults as a retry notice.
func printError(w io.Writer, err error) {
	if v, ok := api.AsValidation(err); ok {
		_, _ = fmt.Fprintf(w, "error: %s\n", v.Error())
		fields := make([]string, 0, len(v.Errors))
		for f := range v.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", f, v.Errors[f])
		}
		return
	}
	if api.IsTransport(err) {
		_, _ = fmt.Fprintln(w, "error: could not reach the server, try again later")
		return
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
}
