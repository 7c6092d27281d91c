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

func newCategoriesCmd(factory appFactory) *cobra.Command {
	categories := &cobra.Command{Use: "categories", Short: "Category commands"}

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(_ context.Context, app *bootstrap.App) error {
				items := app.Categories.Items()
				if kind != "" {
					items = app.Categories.ByType(core.Kind(kind))
				}
				printCategories(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "type", "", "only categories of this type (expense|income)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				c, err := app.Categories.FetchOne(ctx, args[0])
				if err != nil {
					return err
				}
				printCategories(cmd.OutOrStdout(), []core.Category{c})
				return nil
			})
		},
	}

	var in categoryFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				c, err := app.Categories.Create(ctx, core.CategoryInput{Name: in.name, Type: core.Kind(in.kind)})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created category %s\n", c.ID)
				return nil
			})
		},
	}
	in.register(create)
	_ = create.MarkFlagRequired("name")

	var up categoryFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or retype a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u core.CategoryUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &up.name
			}
			if cmd.Flags().Changed("type") {
				k := core.Kind(up.kind)
				u.Type = &k
			}
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Categories.Update(ctx, args[0], u); err != nil {
					return err
				}
				c, ok := app.Categories.Find(args[0])
				if !ok {
					return fmt.Errorf("category %s not found", args[0])
				}
				printCategories(cmd.OutOrStdout(), []core.Category{c})
				return nil
			})
		},
	}
	up.register(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unused category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Categories.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted category %s\n", args[0])
				return nil
			})
		},
	}

	categories.AddCommand(list, show, create, update, del)
	return categories
}

type categoryFlags struct {
	name string
	kind string
}

func (f *categoryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "category name")
	cmd.Flags().StringVar(&f.kind, "type", string(core.KindExpense), "expense|income")
}

func printCategories(w io.Writer, categories []core.Category) {
	if len(categories) == 0 {
		_, _ = fmt.Fprintln(w, "no categories")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range categories {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Type, c.Name)
	}
	_ = tw.Flush()
}
