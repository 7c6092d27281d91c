// Package memory is an in-process stand-in for the remote backend. It keeps
// users, budgets and categories in memory, issues signed bearer tokens and
// answers with the same error shapes as the HTTP API.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
)

const defaultTokenTTL = 24 * time.Hour

const msgBadCredentials = "These credentials do not match our records."

type account struct {
	user     core.User
	password []byte
}

// Options tune a Server.
type Options struct {
	Secret   string
	TokenTTL time.Duration
	// Hook runs before every call with the call name ("Login", "ListBudgets", ...).
	// A non-nil error is returned to the caller instead of running the call.
	Hook func(ctx context.Context, call string) error
}

// Server holds backend state shared by every Client created from it.
type Server struct {
	mu         sync.Mutex
	secret     []byte
	ttl        time.Duration
	hook       func(ctx context.Context, call string) error
	accounts   map[string]*account // by user id
	byEmail    map[string]string
	budgets    map[string][]core.Budget
	categories map[string][]core.Category
	calls      map[string]int
	failures   map[string]error
}

func NewServer(opts Options) *Server {
	secret := opts.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Server{
		secret:     []byte(secret),
		ttl:        ttl,
		hook:       opts.Hook,
		accounts:   map[string]*account{},
		byEmail:    map[string]string{},
		budgets:    map[string][]core.Budget{},
		categories: map[string][]core.Category{},
		calls:      map[string]int{},
		failures:   map[string]error{},
	}
}

// AddUser registers a verified user directly, bypassing validation.
func (s *Server) AddUser(name, email, password string) (core.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.createAccountLocked(name, email, hash)
	u.IsEmailVerified = true
	s.accounts[u.ID].user = u
	return u, nil
}

// FailNext makes the next call named call return err.
func (s *Server) FailNext(call string, err error) {
	s.mu.Lock()
	s.failures[call] = err
	s.mu.Unlock()
}

// Calls reports how many times call was invoked.
func (s *Server) Calls(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[call]
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(uuid.NewString())
}

// Client returns a fresh connection to the server with no credentials.
func (s *Server) Client() *Client {
	return &Client{srv: s}
}

func (s *Server) enter(ctx context.Context, call string) error {
	s.mu.Lock()
	s.calls[call]++
	err, ok := s.failures[call]
	delete(s.failures, call)
	hook := s.hook
	s.mu.Unlock()
	if ok {
		return err
	}
	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return &api.TransportError{Op: call, Err: err}
	}
	return nil
}

func (s *Server) createAccountLocked(name, email string, hash []byte) core.User {
	u := core.User{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    strings.ToLower(email),
		Theme:    core.ThemeLight,
		Currency: "USD",
		Language: "en",
	}
	s.accounts[u.ID] = &account{user: u, password: hash}
	s.byEmail[u.Email] = u.ID
	s.categories[u.ID] = defaultCategories()
	return u
}

func defaultCategories() []core.Category {
	seed := []core.CategoryInput{
		{Name: "Salary", Type: core.KindIncome},
		{Name: "Groceries", Type: core.KindExpense},
		{Name: "Rent", Type: core.KindExpense},
		{Name: "Transport", Type: core.KindExpense},
	}
	out := make([]core.Category, len(seed))
	for i, in := range seed {
		out[i] = core.Category{ID: uuid.NewString(), Name: in.Name, Type: in.Type}
	}
	return out
}

type claims struct {
	jwt.StandardClaims
}

func (s *Server) issueTokenLocked(userID string) (string, error) {
	now := time.Now()
	c := claims{StandardClaims: jwt.StandardClaims{
		Id:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// userForTokenLocked resolves a bearer token to its account.
func (s *Server) userForTokenLocked(token string) (*account, error) {
	if token == "" {
		return nil, unauthenticated()
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, unauthenticated()
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, unauthenticated()
	}
	acc, ok := s.accounts[c.Subject]
	if !ok {
		return nil, unauthenticated()
	}
	return acc, nil
}

func unauthenticated() *api.ValidationError {
	return &api.ValidationError{StatusCode: http.StatusUnauthorized, Message: "Unauthenticated."}
}

func csrfMismatch() *api.ValidationError {
	return &api.ValidationError{StatusCode: 419, Message: "CSRF token mismatch."}
}

func invalid(message string, fields api.FieldErrors) *api.ValidationError {
	return &api.ValidationError{StatusCode: http.StatusUnprocessableEntity, Message: message, Errors: fields}
}

func notFound(what string) *api.ValidationError {
	return &api.ValidationError{StatusCode: http.StatusNotFound, Message: what + " not found."}
}

// fieldError maps a domain validation error to the field it concerns.
func fieldError(err error) *api.ValidationError {
	field := "base"
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		field = "amount"
	case errors.Is(err, core.ErrInvalidKind):
		field = "type"
	case errors.Is(err, core.ErrEmptyCategoryID):
		field = "category_id"
	case errors.Is(err, core.ErrEmptyName):
		field = "name"
	case errors.Is(err, core.ErrInvalidTheme):
		field = "theme"
	case errors.Is(err, core.ErrEmptyCurrency):
		field = "currency"
	}
	return invalid("The given data was invalid.", api.FieldErrors{field: err.Error()})
}

func validateEmail(email string) *api.ValidationError {
	if err := checkmail.ValidateFormat(email); err != nil {
		return invalid("The given data was invalid.", api.FieldErrors{"email": "The email must be a valid email address."})
	}
	return nil
}
