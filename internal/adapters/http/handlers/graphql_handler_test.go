package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michael-harrison/graph-attack/internal/adapters/graphql"
	"github.com/michael-harrison/graph-attack/internal/adapters/http/handlers"
	"github.com/michael-harrison/graph-attack/internal/adapters/http/middleware"
	"github.com/michael-harrison/graph-attack/internal/adapters/storage/memory"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
	"github.com/michael-harrison/graph-attack/internal/core/services"
	"github.com/michael-harrison/graph-attack/internal/demo"
)

const (
	ip      = "99.99.99.99"
	otherIP = "203.0.113.43"

	loginMutation = `mutation($email: String!, $password: String!) {
  %s(email: $email, password: $password) { user { id firstName lastName email } }
}`
)

type server struct {
	handler http.Handler
	store   *memory.Storage
}

func newServer(t *testing.T, store ports.CounterStore) http.Handler {
	t.Helper()
	schema, err := demo.LoadSchema()
	require.NoError(t, err)

	limits, err := graphql.LimitsFromSchema(schema)
	require.NoError(t, err)
	registry, err := services.NewRegistry(limits)
	require.NoError(t, err)

	analyzer, err := services.NewAnalyzer(store, registry)
	require.NoError(t, err)

	executor, err := graphql.NewExecutor(schema, demo.Resolvers(analyzer))
	require.NoError(t, err)

	return middleware.NewClientIdentityMiddleware(true)(handlers.NewGraphQLHandler(schema, analyzer, executor, nil))
}

func newDefaultServer(t *testing.T) server {
	store := memory.New()
	return server{handler: newServer(t, store), store: store}
}

func (s server) execute(t *testing.T, clientIP, query string, vars map[string]any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	req.RemoteAddr = ""

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func loginVars(password string) map[string]any {
	return map[string]any{"email": "john.citizen@example.com", "password": password}
}

func errorMessages(resp map[string]any) []string {
	raw, _ := resp["errors"].([]any)
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m["message"].(string))
		}
	}
	return out
}

func TestGraphQL_FieldWithoutRateLimit(t *testing.T) {
	s := newDefaultServer(t)

	code, resp := s.execute(t, ip, `{ inexpensiveField }`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, resp, "errors")
	assert.Equal(t, map[string]any{"inexpensiveField": "result"}, resp["data"])
	assert.Empty(t, s.store.Keys())
}

func TestGraphQL_FieldWithRateLimit(t *testing.T) {
	s := newDefaultServer(t)

	s.execute(t, ip, `{ expensiveField }`, nil)
	assert.Equal(t, []string{"ratelimit:99.99.99.99:graphql-query-expensiveField"}, s.store.Keys())

	for i := 0; i < 4; i++ {
		code, resp := s.execute(t, ip, `{ expensiveField }`, nil)
		require.Equal(t, http.StatusOK, code)
		assert.NotContains(t, resp, "errors")
		assert.Equal(t, map[string]any{"expensiveField": "result"}, resp["data"])
	}

	code, resp := s.execute(t, ip, `{ expensiveField }`, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, []any{map[string]any{"message": "Query rate limit exceeded on expensiveField"}}, resp["errors"])
	assert.NotContains(t, resp, "data")

	code, resp = s.execute(t, otherIP, `{ expensiveField }`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, resp, "errors")
	assert.Equal(t, map[string]any{"expensiveField": "result"}, resp["data"])
}

func TestGraphQL_SeveralRateLimitedFields(t *testing.T) {
	s := newDefaultServer(t)
	query := `{ expensiveField expensiveField2 }`

	for i := 0; i < 5; i++ {
		code, _ := s.execute(t, ip, query, nil)
		require.Equal(t, http.StatusOK, code)
	}

	_, resp := s.execute(t, ip, query, nil)
	assert.Equal(t, []string{"Query rate limit exceeded on expensiveField"}, errorMessages(resp))
	assert.NotContains(t, resp, "data")

	for i := 0; i < 4; i++ {
		s.execute(t, ip, query, nil)
	}

	_, resp = s.execute(t, ip, query, nil)
	assert.Equal(t, []string{"Query rate limit exceeded on expensiveField, expensiveField2"}, errorMessages(resp))
	assert.NotContains(t, resp, "data")
}

func TestGraphQL_MutationWithoutRateLimit(t *testing.T) {
	s := newDefaultServer(t)

	code, resp := s.execute(t, ip, `mutation { logout { success } }`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, resp, "errors")
	assert.Equal(t, map[string]any{"logout": map[string]any{"success": true}}, resp["data"])
	assert.Empty(t, s.store.Keys())
}

func TestGraphQL_MutationWithRateLimit(t *testing.T) {
	s := newDefaultServer(t)
	query := fmtLogin("login")
	expected := map[string]any{"login": map[string]any{"user": map[string]any{
		"id": "1", "firstName": "John", "lastName": "Citizen", "email": "john.citizen@example.com",
	}}}

	for i := 0; i < 5; i++ {
		code, resp := s.execute(t, ip, query, loginVars("something secret"))
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, expected, resp["data"])
	}
	assert.Equal(t, []string{"ratelimit:99.99.99.99:graphql-query-login"}, s.store.Keys())

	_, resp := s.execute(t, ip, query, loginVars("something secret"))
	assert.Equal(t, []any{map[string]any{"message": "Query rate limit exceeded on login"}}, resp["errors"])
	assert.NotContains(t, resp, "data")

	_, resp = s.execute(t, otherIP, query, loginVars("something secret"))
	assert.NotContains(t, resp, "errors")
	assert.Equal(t, expected, resp["data"])
}

func TestGraphQL_ManualMutationLimiting(t *testing.T) {
	t.Run("correct password is never counted", func(t *testing.T) {
		s := newDefaultServer(t)
		for i := 0; i < 6; i++ {
			_, resp := s.execute(t, ip, fmtLogin("limitedLogin"), loginVars("something secret"))
			assert.NotContains(t, resp, "errors")
		}
		assert.Empty(t, s.store.Keys())
	})

	t.Run("failed logins are counted", func(t *testing.T) {
		s := newDefaultServer(t)
		failed := map[string]any{"limitedLogin": map[string]any{"user": nil}}

		for i := 0; i < 5; i++ {
			_, resp := s.execute(t, ip, fmtLogin("limitedLogin"), loginVars("something incorrect"))
			assert.NotContains(t, resp, "errors")
			assert.Equal(t, failed, resp["data"])
		}
		assert.Equal(t, []string{"ratelimit:99.99.99.99:graphql-query-loginFailure"}, s.store.Keys())

		code, resp := s.execute(t, ip, fmtLogin("limitedLogin"), loginVars("something incorrect"))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, []string{demo.ExpensiveMessage}, errorMessages(resp))
		assert.Equal(t, map[string]any{"limitedLogin": nil}, resp["data"])

		_, resp = s.execute(t, otherIP, fmtLogin("limitedLogin"), loginVars("something incorrect"))
		assert.NotContains(t, resp, "errors")
		assert.Equal(t, failed, resp["data"])
	})
}

func TestGraphQL_ManualQueryLimiting(t *testing.T) {
	s := newDefaultServer(t)

	for i := 0; i < 5; i++ {
		_, resp := s.execute(t, ip, `{ sometimesExpensiveField }`, nil)
		assert.NotContains(t, resp, "errors")
		assert.Equal(t, map[string]any{"sometimesExpensiveField": "result"}, resp["data"])
	}
	assert.Equal(t, []string{"ratelimit:99.99.99.99:graphql-query-sometimesExpensiveField"}, s.store.Keys())

	_, resp := s.execute(t, ip, `{ sometimesExpensiveField }`, nil)
	assert.Equal(t, []string{demo.ExpensiveMessage}, errorMessages(resp))
	assert.NotContains(t, resp, "data")

	_, resp = s.execute(t, otherIP, `{ sometimesExpensiveField }`, nil)
	assert.NotContains(t, resp, "errors")
}

func TestGraphQL_CustomNamespaceStore(t *testing.T) {
	store := memory.New(memory.WithNamespace("custom"))
	s := server{handler: newServer(t, store), store: store}

	s.execute(t, ip, `{ expensiveField }`, nil)
	assert.Equal(t, []string{"custom:99.99.99.99:graphql-query-expensiveField"}, store.Keys())
}

func TestGraphQL_MissingIdentityAbortsRequest(t *testing.T) {
	s := newDefaultServer(t)

	code, resp := s.execute(t, "", `{ expensiveField }`, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, resp, "data")
	assert.Empty(t, s.store.Keys())
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Exceeded(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGraphQL_StoreUnavailable(t *testing.T) {
	s := server{handler: newServer(t, failingStore{})}

	code, resp := s.execute(t, ip, `{ expensiveField }`, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, []string{"Internal Server Error"}, errorMessages(resp))
	assert.NotContains(t, resp, "data")

	code, _ = s.execute(t, ip, `{ inexpensiveField }`, nil)
	assert.Equal(t, http.StatusOK, code, "unlimited fields never touch the store")
}

func TestGraphQL_InvalidRequests(t *testing.T) {
	s := newDefaultServer(t)

	code, resp := s.execute(t, ip, `{ unknownField }`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, errorMessages(resp))

	code, _ = s.execute(t, ip, ``, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphQL_GetRequest(t *testing.T) {
	s := newDefaultServer(t)

	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(`{ expensiveField }`), nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"expensiveField":"result"}}`, rec.Body.String())
}

func fmtLogin(field string) string {
	return fmt.Sprintf(loginMutation, field)
}
