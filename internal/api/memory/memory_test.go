package memory

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
)

func loggedIn(t *testing.T) (*Server, *Client) {
	t.Helper()
	srv := NewServer(Options{Secret: "test"})
	_, err := srv.AddUser("Ann", "ann@example.com", "password1")
	require.NoError(t, err)
	c := srv.Client()
	ctx := context.Background()
	require.NoError(t, c.GetCSRFCookie(ctx))
	res, err := c.Login(ctx, "ann@example.com", "password1")
	require.NoError(t, err)
	c.SetBearerToken(res.Token)
	return srv, c
}

func TestLoginRequiresCSRF(t *testing.T) {
	srv := NewServer(Options{})
	_, err := srv.AddUser("Ann", "ann@example.com", "password1")
	require.NoError(t, err)

	_, err = srv.Client().Login(context.Background(), "ann@example.com", "password1")
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, 419, verr.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := NewServer(Options{})
	_, err := srv.AddUser("Ann", "ann@example.com", "password1")
	require.NoError(t, err)
	c := srv.Client()
	ctx := context.Background()
	require.NoError(t, c.GetCSRFCookie(ctx))

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"wrong password", "ann@example.com", "nope", msgBadCredentials},
		{"unknown email", "bob@example.com", "password1", msgBadCredentials},
		{"malformed email", "not-an-email", "password1", "The email must be a valid email address."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Login(ctx, tt.email, tt.password)
			verr, ok := api.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, http.StatusUnprocessableEntity, verr.StatusCode)
			assert.Equal(t, tt.field, verr.Field("email"))
		})
	}
}

func TestRegister(t *testing.T) {
	srv := NewServer(Options{})
	c := srv.Client()
	ctx := context.Background()
	require.NoError(t, c.GetCSRFCookie(ctx))

	_, err := c.Register(ctx, api.RegisterInput{Name: "", Email: "x", Password: "short"})
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Field("name"))
	assert.NotEmpty(t, verr.Field("email"))
	assert.NotEmpty(t, verr.Field("password"))

	res, err := c.Register(ctx, api.RegisterInput{
		Name: "Bob", Email: "Bob@Example.com", Password: "password1", PasswordConfirmation: "password1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "bob@example.com", res.User.Email)
	assert.False(t, res.User.IsEmailVerified)

	_, err = c.Register(ctx, api.RegisterInput{
		Name: "Bob", Email: "bob@example.com", Password: "password1", PasswordConfirmation: "password1",
	})
	verr, ok = api.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "The email has already been taken.", verr.Field("email"))

	c.SetBearerToken(res.Token)
	cats, err := c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 4)
}

func TestTokenLifecycle(t *testing.T) {
	srv, c := loggedIn(t)
	ctx := context.Background()

	u, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	srv.RevokeAll()
	_, err = c.GetCurrentUser(ctx)
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, verr.StatusCode)

	c.ClearBearerToken()
	_, err = c.GetCurrentUser(ctx)
	_, ok = api.AsValidation(err)
	assert.True(t, ok)
}

func TestSettingsAndVerification(t *testing.T) {
	_, c := loggedIn(t)
	ctx := context.Background()

	p, err := c.UpdateSettings(ctx, core.Settings{Theme: core.ThemeDark, Currency: "eur", Language: "it"})
	require.NoError(t, err)
	assert.Equal(t, `"EUR"`, string(p["currency"]))
	assert.NotContains(t, p, "id")
	u, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ThemeDark, u.Theme)
	assert.Equal(t, "EUR", u.Currency)

	_, err = c.UpdateSettings(ctx, core.Settings{Theme: "blue", Currency: "EUR"})
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Field("theme"))

	// AddUser creates verified accounts.
	err = c.ResendVerificationEmail(ctx)
	_, ok = api.AsValidation(err)
	assert.True(t, ok)
}

func TestBudgetCRUD(t *testing.T) {
	_, c := loggedIn(t)
	ctx := context.Background()

	cats, err := c.ListCategories(ctx)
	require.NoError(t, err)
	groceries := cats[1]

	first, err := c.CreateBudget(ctx, core.BudgetInput{CategoryID: groceries.ID, Amount: core.NewMoney(100), Type: core.KindExpense})
	require.NoError(t, err)
	second, err := c.CreateBudget(ctx, core.BudgetInput{CategoryID: groceries.ID, Amount: core.NewMoney(50), Type: core.KindExpense})
	require.NoError(t, err)
	assert.Equal(t, "active", first.Status)
	require.NotNil(t, first.Category)
	assert.Equal(t, "Groceries", first.Category.Name)

	list, err := c.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	_, err = c.CreateBudget(ctx, core.BudgetInput{CategoryID: "missing", Amount: core.NewMoney(1), Type: core.KindExpense})
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Field("category_id"))

	amount := core.NewMoney(150)
	patch, err := c.UpdateBudget(ctx, first.ID, core.BudgetUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, first.ID, patch.ID())
	assert.Contains(t, patch, "amount")
	assert.NotContains(t, patch, "type")

	got, err := c.GetBudget(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), got.Amount.Cents)

	require.NoError(t, c.DeleteBudget(ctx, first.ID))
	_, err = c.GetBudget(ctx, first.ID)
	verr, ok = api.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, verr.StatusCode)
}

func TestCategoryInUseCannotBeDeleted(t *testing.T) {
	_, c := loggedIn(t)
	ctx := context.Background()

	cat, err := c.CreateCategory(ctx, core.CategoryInput{Name: "Books", Type: core.KindExpense})
	require.NoError(t, err)
	_, err = c.CreateBudget(ctx, core.BudgetInput{CategoryID: cat.ID, Amount: core.NewMoney(10), Type: core.KindExpense})
	require.NoError(t, err)

	err = c.DeleteCategory(ctx, cat.ID)
	_, ok := api.AsValidation(err)
	assert.True(t, ok)

	name := "Novels"
	patch, err := c.UpdateCategory(ctx, cat.ID, core.CategoryUpdate{Name: &name})
	require.NoError(t, err)
	assert.JSONEq(t, `"Novels"`, string(patch["name"]))
}

func TestFailuresAndHook(t *testing.T) {
	srv, c := loggedIn(t)
	ctx := context.Background()

	boom := &api.TransportError{Op: "ListBudgets", Err: errors.New("boom")}
	srv.FailNext("ListBudgets", boom)
	_, err := c.ListBudgets(ctx)
	assert.Same(t, boom, err)
	_, err = c.ListBudgets(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, srv.Calls("ListBudgets"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.ListCategories(cancelled)
	assert.True(t, api.IsTransport(err))
}
