package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/amqp"
	"budgetsync/internal/api"
	"budgetsync/internal/api/memory"
	"budgetsync/internal/backend"
	"budgetsync/internal/bootstrap"
	"budgetsync/internal/config"
	"budgetsync/internal/storage"
)

// harness runs commands against one memory server and one durable store, so
// a session survives from one command to the next like it does on disk.
type harness struct {
	srv *memory.Server
	kv  *storage.MemoryKV
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := memory.NewServer(memory.Options{})
	_, err := srv.AddUser("Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	return &harness{srv: srv, kv: storage.NewMemoryKV()}
}

func (h *harness) factory(context.Context) (*bootstrap.App, error) {
	cfg := &config.Config{SelectorCacheSize: 16, SelectorCacheTTL: time.Minute}
	return bootstrap.NewWithBackend(cfg, nil, &backend.Result{
		Client:  h.srv.Client(),
		Storage: h.kv,
		Server:  h.srv,
	}), nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(h.factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "budgetsync %s", strings.Join(args, " "))
	return out
}

func TestSessionCommands(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)

	out := h.mustRun(t, "login", "--email", "ada@example.com", "--password", "correct-horse")
	assert.Contains(t, out, "signed in as Ada <ada@example.com>")

	out = h.mustRun(t, "whoami")
	assert.Contains(t, out, "email: ada@example.com")

	out = h.mustRun(t, "settings", "--theme", "dark", "--currency", "eur")
	assert.Contains(t, out, "theme: dark")
	assert.Contains(t, out, "currency: EUR")

	out = h.mustRun(t, "settings", "--toggle-theme")
	assert.Contains(t, out, "theme: light")

	h.mustRun(t, "logout")
	_, err = h.run(t, "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestWhoamiOffline(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "whoami", "--offline")
	assert.ErrorIs(t, err, errNotSignedIn)

	h.mustRun(t, "login", "--email", "ada@example.com", "--password", "correct-horse")
	h.srv.FailNext("GetCurrentUser", &api.TransportError{Op: "GetCurrentUser", Err: errors.New("connection refused")})

	out := h.mustRun(t, "whoami", "--offline")
	assert.Contains(t, out, "name: Ada")
	assert.Equal(t, 0, h.srv.Calls("GetCurrentUser"))
}

func TestRejectedLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "login", "--email", "ada@example.com", "--password", "nope-nope")
	v, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, v.Message)
}

func TestBudgetCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "login", "--email", "ada@example.com", "--password", "correct-horse")

	out := h.mustRun(t, "categories", "list", "--type", "expense")
	require.Contains(t, out, "Groceries")
	groceries := strings.Fields(lineContaining(out, "Groceries"))[0]

	out = h.mustRun(t, "budgets", "create", "--category", groceries, "--amount", "120,50")
	require.Contains(t, out, "created budget ")
	id := strings.TrimSpace(strings.TrimPrefix(out, "created budget "))

	out = h.mustRun(t, "budgets", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "120.50")
	assert.Contains(t, out, "Groceries")

	out = h.mustRun(t, "budgets", "update", id, "--amount", "150")
	assert.Contains(t, out, "150.00")
	assert.Contains(t, out, "Groceries")

	out = h.mustRun(t, "budgets", "show", id)
	assert.Contains(t, out, "150.00")

	out = h.mustRun(t, "budgets", "totals")
	assert.Contains(t, out, "expense\t150.00\t(1)")

	out = h.mustRun(t, "budgets", "list", "--category", groceries)
	assert.Contains(t, out, id)

	_, err := h.run(t, "categories", "delete", groceries)
	_, ok := api.AsValidation(err)
	assert.True(t, ok, "deleting a category in use should be rejected by the server")

	h.mustRun(t, "budgets", "delete", id)
	out = h.mustRun(t, "budgets", "list")
	assert.Contains(t, out, "no budgets")
}

func TestCategoryCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "login", "--email", "ada@example.com", "--password", "correct-horse")

	out := h.mustRun(t, "categories", "create", "--name", "Books")
	id := strings.TrimSpace(strings.TrimPrefix(out, "created category "))

	out = h.mustRun(t, "categories", "update", id, "--name", "Comics")
	assert.Contains(t, out, "Comics")

	out = h.mustRun(t, "categories", "show", id)
	assert.Contains(t, out, "Comics")

	h.mustRun(t, "categories", "delete", id)
	out = h.mustRun(t, "categories", "list")
	assert.NotContains(t, out, "Comics")
}

func TestSyncCommand(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "sync")
	assert.ErrorIs(t, err, errNotSignedIn)

	h.mustRun(t, "login", "--email", "ada@example.com", "--password", "correct-horse")
	out := h.mustRun(t, "sync")
	assert.Contains(t, out, "budgets: 0")
	assert.Contains(t, out, "categories: 4")
}

func TestCreateBudgetRejectsBadAmount(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "budgets", "create", "--category", "x", "--amount", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestTailWithoutBroker(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "tail")
	assert.ErrorIs(t, err, errNoBroker)
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:00:00Z budgets/create succeeded",
		formatMessage(&amqp.TransitionMessage{At: at, Op: "budgets/create", Phase: "succeeded"}))
	assert.Equal(t, "2026-03-01T12:00:00Z session/login failed: Invalid credentials",
		formatMessage(&amqp.TransitionMessage{At: at, Op: "session/login", Phase: "failed", Error: "Invalid credentials"}))
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation",
			err: &api.ValidationError{StatusCode: 422, Message: "The given data was invalid.", Errors: api.FieldErrors{
				"password": "Too short.",
				"email":    "Taken.",
			}},
			want: "error: The given data was invalid.\n  email: Taken.\n  password: Too short.\n",
		},
		{
			name: "transport",
			err:  &api.TransportError{Op: "ListBudgets", Err: errors.New("dial tcp: connection refused")},
			want: "error: could not reach the server, try again later\n",
		},
		{
			name: "other",
			err:  errNotSignedIn,
			want: "error: not signed in: run 'budgetsync login' first\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func lineContaining(s, substr string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	return ""
}
