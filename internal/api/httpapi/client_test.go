package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/api"
	"budgetsync/internal/core"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestLoginSendsCSRFHeaderAndDecodesEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sanctum/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "abc%3D", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-XSRF-TOKEN") != "abc=" {
			writeJSON(w, http.StatusRequestTimeout, map[string]any{"message": "CSRF token mismatch."})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.com" || body["password"] != "secret" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Invalid credentials", "errors": map[string]any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"token": "tok123",
			"user":  map[string]any{"id": "1", "name": "A"},
		}})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.GetCSRFCookie(ctx))
	res, err := c.Login(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok123", res.Token)
	assert.Equal(t, core.User{ID: "1", Name: "A"}, res.User)

	_, err = c.Login(ctx, "a@b.com", "wrong")
	verr, ok := api.AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, "Invalid credentials", verr.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, verr.StatusCode)
}

func TestBearerToken(t *testing.T) {
	var seen []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "1"}})
	}))
	ctx := context.Background()

	_, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	c.SetBearerToken("tok")
	_, err = c.GetCurrentUser(ctx)
	require.NoError(t, err)
	c.ClearBearerToken()
	_, err = c.GetCurrentUser(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Bearer tok", ""}, seen)
}

func TestFieldErrorsFromServer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string]any{"amount": []string{"The amount must be at least 1."}},
		})
	}))
	_, err := c.CreateBudget(context.Background(), core.BudgetInput{CategoryID: "5", Type: core.KindExpense})
	verr, ok := api.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "The amount must be at least 1.", verr.Field("amount"))
}

func TestTransportErrors(t *testing.T) {
	t.Run("non JSON error body", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>bad gateway</html>")
		}))
		_, err := c.ListBudgets(context.Background())
		assert.True(t, api.IsTransport(err), "got %v", err)
	})

	t.Run("success without envelope", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []any{})
		}))
		_, err := c.ListCategories(context.Background())
		assert.True(t, api.IsTransport(err), "got %v", err)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, err := New(Config{BaseURL: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = c.GetCurrentUser(context.Background())
		assert.True(t, api.IsTransport(err), "got %v", err)
	})
}

func TestBudgetRoutes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/budgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "2", "category_id": "5", "amount": 20, "type": "expense"},
			{"id": "1", "category_id": "5", "amount": 10.5, "type": "income"},
		}})
	})
	mux.HandleFunc("PUT /api/budgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": r.PathValue("id"), "amount": body["amount"]}})
	})
	mux.HandleFunc("DELETE /api/budgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	budgets, err := c.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.Equal(t, "2", budgets[0].ID)
	assert.Equal(t, int64(1050), budgets[1].Amount.Cents)

	amount := core.NewMoney(150)
	patch, err := c.UpdateBudget(ctx, "9", core.BudgetUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "9", patch.ID())
	assert.JSONEq(t, "150", string(patch["amount"]))
	assert.NotContains(t, patch, "type")

	require.NoError(t, c.DeleteBudget(ctx, "9"))
}

func TestRequestIDHeader(t *testing.T) {
	var seen []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(RequestIDHeader))
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}))

	_, err := c.ListBudgets(context.Background())
	require.NoError(t, err)
	_, err = c.ListBudgets(WithRequestID(context.Background(), "req_fixed"))
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Regexp(t, `^req_[0-9a-f]{16}$`, seen[0])
	assert.Equal(t, "req_fixed", seen[1])
	assert.Empty(t, RequestID(context.Background()))
}
