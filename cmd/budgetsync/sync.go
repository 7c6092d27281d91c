package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/amqp"
	"budgetsync/internal/bootstrap"
	"budgetsync/internal/cli"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

var errNoBroker = errors.New("no message broker: set AMQP_URL to a reachable RabbitMQ")

func newSyncCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reload budgets and categories from the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Refresh(ctx); err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), app)
				return nil
			})
		},
	}
}

func newWatchCmd(factory appFactory) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh periodically and print every state transition until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				printTransition := func(t core.Transition) {
					if t.Error != "" {
						_, _ = fmt.Fprintf(out, "%s %s %s: %s\n", t.At.Format(time.RFC3339), t.Op, t.Phase, t.Error)
						return
					}
					_, _ = fmt.Fprintf(out, "%s %s %s\n", t.At.Format(time.RFC3339), t.Op, t.Phase)
				}
				app.Session.Observe(printTransition)
				app.Budgets.Observe(printTransition)
				app.Categories.Observe(printTransition)

				ctx, done := cli.GracefulShutdown(ctx, app.Logger, 5*time.Second, nil)
				defer cli.WaitForShutdown(ctx, done)
				return watch(ctx, app, interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between refreshes")
	return cmd
}

func newTailCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print transitions published by other budgetsync processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				pub := app.Backend.Publisher
				if pub == nil {
					return errNoBroker
				}
				out := cmd.OutOrStdout()
				ctx, done := cli.GracefulShutdown(ctx, app.Logger, 5*time.Second, nil)
				defer cli.WaitForShutdown(ctx, done)

				err := pub.ConsumeTransitions(ctx, func(m *amqp.TransitionMessage) error {
					_, err := fmt.Fprintln(out, formatMessage(m))
					return err
				})
				if ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
}

func formatMessage(m *amqp.TransitionMessage) string {
	line := fmt.Sprintf("%s %s %s", m.At.Format(time.RFC3339), m.Op, m.Phase)
	if m.Error != "" {
		line += ": " + m.Error
	}
	return line
}

// watch refreshes until ctx ends. Refresh failures are logged and retried on
// the next tick.
func watch(ctx context.Context, app *bootstrap.App, interval time.Duration) error {
	logger := app.Logger.WithComponent(log.ComponentCLI)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := app.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Refresh failed", log.FieldOperation, log.OpSync, log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printSummary(w io.Writer, app *bootstrap.App) {
	_, _ = fmt.Fprintf(w, "budgets: %d\ncategories: %d\n", len(app.Budgets.Items()), len(app.Categories.Items()))
	for _, t := range app.Budgets.Totals() {
		_, _ = fmt.Fprintf(w, "%s: %s\n", t.Kind, t.Amount)
	}
}
