package store

import (
	"context"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

type (
	BudgetCollection   = Collection[core.Budget, core.BudgetInput, core.BudgetUpdate]
	CategoryCollection = Collection[core.Category, core.CategoryInput, core.CategoryUpdate]
)

// Budgets is the budget collection with its resource-specific selectors.
type Budgets struct {
	*BudgetCollection
}

func NewBudgets(client api.BudgetAPI, cfg CollectionConfig) *Budgets {
	return &Budgets{NewCollection[core.Budget, core.BudgetInput, core.BudgetUpdate](
		log.ComponentBudgets, budgetResource{client}, cfg)}
}

// ByStatus returns the budgets whose server status equals status.
func (b *Budgets) ByStatus(status string) []core.Budget {
	return b.Where("status:"+status, func(x core.Budget) bool { return x.Status == status })
}

// ByCategory returns the budgets attached to one category.
func (b *Budgets) ByCategory(categoryID string) []core.Budget {
	return b.Where("category:"+categoryID, func(x core.Budget) bool { return x.CategoryID == categoryID })
}

// Totals sums the loaded budgets per kind.
func (b *Budgets) Totals() []core.KindTotal {
	return core.SummarizeBudgets(b.Items())
}

// Categories is the category collection with its resource-specific selectors.
type Categories struct {
	*CategoryCollection
}

func NewCategories(client api.CategoryAPI, cfg CollectionConfig) *Categories {
	return &Categories{NewCollection[core.Category, core.CategoryInput, core.CategoryUpdate](
		log.ComponentCategory, categoryResource{client}, cfg)}
}

// ByType returns the categories of one kind.
func (c *Categories) ByType(kind core.Kind) []core.Category {
	return c.Where("type:"+string(kind), func(x core.Category) bool { return x.Type == kind })
}

type budgetResource struct{ client api.BudgetAPI }

func (r budgetResource) List(ctx context.Context) ([]core.Budget, error) {
	return r.client.ListBudgets(ctx)
}

func (r budgetResource) Get(ctx context.Context, id string) (core.Budget, error) {
	return r.client.GetBudget(ctx, id)
}

func (r budgetResource) Create(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	return r.client.CreateBudget(ctx, in)
}

func (r budgetResource) Update(ctx context.Context, id string, u core.BudgetUpdate) (core.Patch, error) {
	return r.client.UpdateBudget(ctx, id, u)
}

func (r budgetResource) Delete(ctx context.Context, id string) error {
	return r.client.DeleteBudget(ctx, id)
}

type categoryResource struct{ client api.CategoryAPI }

func (r categoryResource) List(ctx context.Context) ([]core.Category, error) {
	return r.client.ListCategories(ctx)
}

func (r categoryResource) Get(ctx context.Context, id string) (core.Category, error) {
	return r.client.GetCategory(ctx, id)
}

func (r categoryResource) Create(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	return r.client.CreateCategory(ctx, in)
}

func (r categoryResource) Update(ctx context.Context, id string, u core.CategoryUpdate) (core.Patch, error) {
	return r.client.UpdateCategory(ctx, id, u)
}

func (r categoryResource) Delete(ctx context.Context, id string) error {
	return r.client.DeleteCategory(ctx, id)
}
