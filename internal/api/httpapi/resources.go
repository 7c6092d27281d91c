package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
)

func (c *Client) GetCSRFCookie(ctx context.Context) error {
	return c.do(ctx, "get csrf cookie", http.MethodGet, "/sanctum/csrf-cookie", nil, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (api.AuthResult, error) {
	var out api.AuthResult
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, "login", http.MethodPost, "/api/login", body, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in api.RegisterInput) (api.AuthResult, error) {
	var out api.AuthResult
	err := c.do(ctx, "register", http.MethodPost, "/api/register", in, &out)
	return out, err
}

func (c *Client) GetCurrentUser(ctx context.Context) (core.User, error) {
	var out core.User
	err := c.do(ctx, "get current user", http.MethodGet, "/api/user", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, s core.Settings) (core.Patch, error) {
	var out core.Patch
	err := c.do(ctx, "update settings", http.MethodPut, "/api/user/settings", s, &out)
	return out, err
}

func (c *Client) ResendVerificationEmail(ctx context.Context) error {
	return c.do(ctx, "resend verification email", http.MethodPost, "/api/email/verification-notification", nil, nil)
}

func (c *Client) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := c.do(ctx, "list budgets", http.MethodGet, "/api/budgets", nil, &out)
	return out, err
}

func (c *Client) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, "get budget", http.MethodGet, "/api/budgets/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, "create budget", http.MethodPost, "/api/budgets", in, &out)
	return out, err
}

func (c *Client) UpdateBudget(ctx context.Context, id string, u core.BudgetUpdate) (core.Patch, error) {
	var out core.Patch
	err := c.do(ctx, "update budget", http.MethodPut, "/api/budgets/"+url.PathEscape(id), u, &out)
	return out, err
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	return c.do(ctx, "delete budget", http.MethodDelete, "/api/budgets/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, "list categories", http.MethodGet, "/api/categories", nil, &out)
	return out, err
}

func (c *Client) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, "get category", http.MethodGet, "/api/categories/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, "create category", http.MethodPost, "/api/categories", in, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, u core.CategoryUpdate) (core.Patch, error) {
	var out core.Patch
	err := c.do(ctx, "update category", http.MethodPut, "/api/categories/"+url.PathEscape(id), u, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, "delete category", http.MethodDelete, "/api/categories/"+url.PathEscape(id), nil, nil)
}
