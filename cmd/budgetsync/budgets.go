package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetsync/internal/bootstrap"
	"budgetsync/internal/core"
)

func newBudgetsCmd(factory appFactory) *cobra.Command {
	budgets := &cobra.Command{Use: "budgets", Short: "Budget commands"}

	var status, categoryID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List budgets in server order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Budgets.FetchAll(ctx); err != nil {
					return err
				}
				items := app.Budgets.Items()
				switch {
				case status != "":
					items = app.Budgets.ByStatus(status)
				case categoryID != "":
					items = app.Budgets.ByCategory(categoryID)
				}
				printBudgets(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "only budgets with this status")
	list.Flags().StringVar(&categoryID, "category", "", "only budgets in this category")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				b, err := app.Budgets.FetchOne(ctx, args[0])
				if err != nil {
					return err
				}
				printBudgets(cmd.OutOrStdout(), []core.Budget{b})
				return nil
			})
		},
	}

	totals := &cobra.Command{
		Use:   "totals",
		Short: "Sum budget amounts per type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Budgets.FetchAll(ctx); err != nil {
					return err
				}
				for _, t := range app.Budgets.Totals() {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(%d)\n", t.Kind, t.Amount, t.Count)
				}
				return nil
			})
		},
	}

	var in budgetFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := parseAmount(in.amount)
			if err != nil {
				return err
			}
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				b, err := app.Budgets.Create(ctx, core.BudgetInput{
					CategoryID: in.categoryID,
					Amount:     amount,
					Type:       core.Kind(in.kind),
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created budget %s\n", b.ID)
				return nil
			})
		},
	}
	in.register(create)
	_ = create.MarkFlagRequired("category")
	_ = create.MarkFlagRequired("amount")

	var up budgetFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change some fields of a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u core.BudgetUpdate
			flags := cmd.Flags()
			if flags.Changed("category") {
				u.CategoryID = &up.categoryID
			}
			if flags.Changed("amount") {
				amount, err := parseAmount(up.amount)
				if err != nil {
					return err
				}
				u.Amount = &amount
			}
			if flags.Changed("type") {
				kind := core.Kind(up.kind)
				u.Type = &kind
			}
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Budgets.FetchAll(ctx); err != nil {
					return err
				}
				if _, err := app.Budgets.Update(ctx, args[0], u); err != nil {
					return err
				}
				b, ok := app.Budgets.Find(args[0])
				if !ok {
					return fmt.Errorf("budget %s not found", args[0])
				}
				printBudgets(cmd.OutOrStdout(), []core.Budget{b})
				return nil
			})
		},
	}
	up.register(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Budgets.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted budget %s\n", args[0])
				return nil
			})
		},
	}

	budgets.AddCommand(list, show, totals, create, update, del)
	return budgets
}

type budgetFlags struct {
	categoryID string
	amount     string
	kind       string
}

func (f *budgetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 12.50 or 12,50")
	cmd.Flags().StringVar(&f.kind, "type", string(core.KindExpense), "expense|income")
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return core.Money{Cents: cents}, nil
}

func printBudgets(w io.Writer, budgets []core.Budget) {
	if len(budgets) == 0 {
		_, _ = fmt.Fprintln(w, "no budgets")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range budgets {
		category := b.CategoryID
		if b.Category != nil {
			category = b.Category.Name
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Type, b.Amount, category, b.Status)
	}
	_ = tw.Flush()
}
