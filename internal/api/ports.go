// Package api defines the outbound ports the stores talk to and the error
// shapes every implementation must return.
package api

import (
	"context"

	"budgetsync/internal/core"
)

type (
	// AuthResult is the payload of a successful login or registration.
	AuthResult struct {
		User  core.User `json:"user"`
		Token string    `json:"token"`
	}

	RegisterInput struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
)

// Ports for outbound adapters.
type (
	AuthAPI interface {
		// GetCSRFCookie primes the anti-forgery cookie before a credential exchange.
		GetCSRFCookie(ctx context.Context) error
		Login(ctx context.Context, email, password string) (AuthResult, error)
		Register(ctx context.Context, in RegisterInput) (AuthResult, error)
		// GetCurrentUser validates the bearer token and returns its principal.
		GetCurrentUser(ctx context.Context) (core.User, error)
		// UpdateSettings returns only the profile fields the server sent back.
		UpdateSettings(ctx context.Context, s core.Settings) (core.Patch, error)
		ResendVerificationEmail(ctx context.Context) error
	}

	// Authorizer controls the default credentials sent with every request.
	Authorizer interface {
		SetBearerToken(token string)
		ClearBearerToken()
	}

	BudgetAPI interface {
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		CreateBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error)
		// UpdateBudget returns only the fields the server sent back.
		UpdateBudget(ctx context.Context, id string, u core.BudgetUpdate) (core.Patch, error)
		DeleteBudget(ctx context.Context, id string) error
	}

	CategoryAPI interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error)
		UpdateCategory(ctx context.Context, id string, u core.CategoryUpdate) (core.Patch, error)
		DeleteCategory(ctx context.Context, id string) error
	}

	// Client is the full surface of a remote backend.
	Client interface {
		AuthAPI
		Authorizer
		BudgetAPI
		CategoryAPI
	}
)
