package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
)

const budgetStatusActive = "active"

var _ api.Client = (*Client)(nil)

// Client is one caller's view of a Server: its bearer token and CSRF cookie.
type Client struct {
	srv *Server

	mu    sync.Mutex
	token string
	csrf  bool
}

func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) ClearBearerToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) credentials() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.csrf
}

// authed runs fn with the account owning the bearer token, under the server lock.
func (c *Client) authed(ctx context.Context, call string, fn func(acc *account) error) error {
	if err := c.srv.enter(ctx, call); err != nil {
		return err
	}
	token, _ := c.credentials()
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	acc, err := c.srv.userForTokenLocked(token)
	if err != nil {
		return err
	}
	return fn(acc)
}

func (c *Client) GetCSRFCookie(ctx context.Context) error {
	if err := c.srv.enter(ctx, "GetCSRFCookie"); err != nil {
		return err
	}
	c.mu.Lock()
	c.csrf = true
	c.mu.Unlock()
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (api.AuthResult, error) {
	if err := c.srv.enter(ctx, "Login"); err != nil {
		return api.AuthResult{}, err
	}
	if _, csrf := c.credentials(); !csrf {
		return api.AuthResult{}, csrfMismatch()
	}
	if verr := validateEmail(email); verr != nil {
		return api.AuthResult{}, verr
	}

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return api.AuthResult{}, invalid(msgBadCredentials, api.FieldErrors{"email": msgBadCredentials})
	}
	acc := s.accounts[id]
	if err := bcrypt.CompareHashAndPassword(acc.password, []byte(password)); err != nil {
		return api.AuthResult{}, invalid(msgBadCredentials, api.FieldErrors{"email": msgBadCredentials})
	}
	token, err := s.issueTokenLocked(acc.user.ID)
	if err != nil {
		return api.AuthResult{}, &api.TransportError{Op: "Login", Err: err}
	}
	return api.AuthResult{User: acc.user, Token: token}, nil
}

func (c *Client) Register(ctx context.Context, in api.RegisterInput) (api.AuthResult, error) {
	if err := c.srv.enter(ctx, "Register"); err != nil {
		return api.AuthResult{}, err
	}
	if _, csrf := c.credentials(); !csrf {
		return api.AuthResult{}, csrfMismatch()
	}

	fields := api.FieldErrors{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "The name field is required."
	}
	if verr := validateEmail(in.Email); verr != nil {
		fields["email"] = verr.Field("email")
	}
	if len(in.Password) < 8 {
		fields["password"] = "The password must be at least 8 characters."
	} else if in.Password != in.PasswordConfirmation {
		fields["password"] = "The password confirmation does not match."
	}

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[strings.ToLower(in.Email)]; taken && fields["email"] == "" {
		fields["email"] = "The email has already been taken."
	}
	if len(fields) > 0 {
		return api.AuthResult{}, invalid("The given data was invalid.", fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return api.AuthResult{}, &api.TransportError{Op: "Register", Err: err}
	}
	u := s.createAccountLocked(strings.TrimSpace(in.Name), in.Email, hash)
	token, err := s.issueTokenLocked(u.ID)
	if err != nil {
		return api.AuthResult{}, &api.TransportError{Op: "Register", Err: err}
	}
	return api.AuthResult{User: u, Token: token}, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (core.User, error) {
	var out core.User
	err := c.authed(ctx, "GetCurrentUser", func(acc *account) error {
		out = acc.user
		return nil
	})
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, settings core.Settings) (core.Patch, error) {
	var out core.Patch
	err := c.authed(ctx, "UpdateSettings", func(acc *account) error {
		if err := settings.Validate(); err != nil {
			return fieldError(err)
		}
		acc.user.Theme = settings.Theme
		acc.user.Currency = strings.ToUpper(settings.Currency)
		acc.user.Language = settings.Language
		p, err := core.PatchOf(core.Settings{Theme: acc.user.Theme, Currency: acc.user.Currency, Language: acc.user.Language})
		if err != nil {
			return &api.TransportError{Op: "UpdateSettings", Err: err}
		}
		out = p
		return nil
	})
	return out, err
}

func (c *Client) ResendVerificationEmail(ctx context.Context) error {
	return c.authed(ctx, "ResendVerificationEmail", func(acc *account) error {
		if acc.user.IsEmailVerified {
			return invalid("Your email is already verified.", nil)
		}
		return nil
	})
}

func (c *Client) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := c.authed(ctx, "ListBudgets", func(acc *account) error {
		out = slices.Clone(c.srv.budgets[acc.user.ID])
		return nil
	})
	return out, err
}

func (c *Client) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var out core.Budget
	err := c.authed(ctx, "GetBudget", func(acc *account) error {
		i := indexOf(c.srv.budgets[acc.user.ID], id)
		if i < 0 {
			return notFound("Budget")
		}
		out = c.srv.budgets[acc.user.ID][i]
		return nil
	})
	return out, err
}

func (c *Client) CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	var out core.Budget
	err := c.authed(ctx, "CreateBudget", func(acc *account) error {
		if err := in.Validate(); err != nil {
			return fieldError(err)
		}
		cats := c.srv.categories[acc.user.ID]
		ci := indexOf(cats, in.CategoryID)
		if ci < 0 {
			return invalid("The given data was invalid.", api.FieldErrors{"category_id": "The selected category is invalid."})
		}
		cat := cats[ci]
		out = core.Budget{
			ID:         uuid.NewString(),
			CategoryID: in.CategoryID,
			Category:   &cat,
			Amount:     in.Amount,
			Type:       in.Type,
			Status:     budgetStatusActive,
		}
		// Newest first, matching the client's prepend-on-create.
		c.srv.budgets[acc.user.ID] = append([]core.Budget{out}, c.srv.budgets[acc.user.ID]...)
		return nil
	})
	return out, err
}

// UpdateBudget answers with the id and the changed fields only.
func (c *Client) UpdateBudget(ctx context.Context, id string, u core.BudgetUpdate) (core.Patch, error) {
	var out core.Patch
	err := c.authed(ctx, "UpdateBudget", func(acc *account) error {
		if err := u.Validate(); err != nil {
			return fieldError(err)
		}
		budgets := c.srv.budgets[acc.user.ID]
		i := indexOf(budgets, id)
		if i < 0 {
			return notFound("Budget")
		}
		b := budgets[i]
		if u.CategoryID != nil {
			ci := indexOf(c.srv.categories[acc.user.ID], *u.CategoryID)
			if ci < 0 {
				return invalid("The given data was invalid.", api.FieldErrors{"category_id": "The selected category is invalid."})
			}
			cat := c.srv.categories[acc.user.ID][ci]
			b.CategoryID, b.Category = cat.ID, &cat
		}
		if u.Amount != nil {
			b.Amount = *u.Amount
		}
		if u.Type != nil {
			b.Type = *u.Type
		}
		budgets[i] = b

		p, err := core.PatchOf(u)
		if err != nil {
			return &api.TransportError{Op: "UpdateBudget", Err: err}
		}
		if u.CategoryID != nil {
			cp, err := core.PatchOf(struct {
				Category *core.Category `json:"category"`
			}{b.Category})
			if err != nil {
				return &api.TransportError{Op: "UpdateBudget", Err: err}
			}
			p["category"] = cp["category"]
		}
		idp, _ := core.PatchOf(map[string]string{"id": b.ID})
		p["id"] = idp["id"]
		out = p
		return nil
	})
	return out, err
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	return c.authed(ctx, "DeleteBudget", func(acc *account) error {
		budgets := c.srv.budgets[acc.user.ID]
		i := indexOf(budgets, id)
		if i < 0 {
			return notFound("Budget")
		}
		c.srv.budgets[acc.user.ID] = slices.Delete(budgets, i, i+1)
		return nil
	})
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.authed(ctx, "ListCategories", func(acc *account) error {
		out = slices.Clone(c.srv.categories[acc.user.ID])
		return nil
	})
	return out, err
}

func (c *Client) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var out core.Category
	err := c.authed(ctx, "GetCategory", func(acc *account) error {
		i := indexOf(c.srv.categories[acc.user.ID], id)
		if i < 0 {
			return notFound("Category")
		}
		out = c.srv.categories[acc.user.ID][i]
		return nil
	})
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.authed(ctx, "CreateCategory", func(acc *account) error {
		if err := in.Validate(); err != nil {
			return fieldError(err)
		}
		for _, existing := range c.srv.categories[acc.user.ID] {
			if strings.EqualFold(existing.Name, in.Name) && existing.Type == in.Type {
				return invalid("The given data was invalid.", api.FieldErrors{"name": "The name has already been taken."})
			}
		}
		out = core.Category{ID: uuid.NewString(), Name: strings.TrimSpace(in.Name), Type: in.Type}
		c.srv.categories[acc.user.ID] = append([]core.Category{out}, c.srv.categories[acc.user.ID]...)
		return nil
	})
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, u core.CategoryUpdate) (core.Patch, error) {
	var out core.Patch
	err := c.authed(ctx, "UpdateCategory", func(acc *account) error {
		if err := u.Validate(); err != nil {
			return fieldError(err)
		}
		cats := c.srv.categories[acc.user.ID]
		i := indexOf(cats, id)
		if i < 0 {
			return notFound("Category")
		}
		if u.Name != nil {
			cats[i].Name = strings.TrimSpace(*u.Name)
		}
		if u.Type != nil {
			cats[i].Type = *u.Type
		}
		p, err := core.PatchOf(cats[i])
		if err != nil {
			return &api.TransportError{Op: "UpdateCategory", Err: err}
		}
		out = p
		return nil
	})
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.authed(ctx, "DeleteCategory", func(acc *account) error {
		cats := c.srv.categories[acc.user.ID]
		i := indexOf(cats, id)
		if i < 0 {
			return notFound("Category")
		}
		for _, b := range c.srv.budgets[acc.user.ID] {
			if b.CategoryID == id {
				return invalid("The category is still used by a budget.", api.FieldErrors{"id": "The category is still used by a budget."})
			}
		}
		c.srv.categories[acc.user.ID] = slices.Delete(cats, i, i+1)
		return nil
	})
}

func indexOf[T interface{ EntityID() string }](items []T, id string) int {
	return slices.IndexFunc(items, func(item T) bool { return item.EntityID() == id })
}
