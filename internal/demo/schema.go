// Package demo define o schema de demonstração servido pelo cmd/server.
package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/michael-harrison/graph-attack/internal/adapters/graphql"
	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

const SDL = graphql.RateLimitDirectiveSDL + `

type Query {
  inexpensiveField: String!
  expensiveField: String! @rateLimit(threshold: 5, interval: 15)
  expensiveField2: String! @rateLimit(threshold: 10, interval: 15)
  sometimesExpensiveField: String!
}

type User {
  id: ID!
  firstName: String!
  lastName: String!
  email: String!
}

type LoginPayload {
  user: User
  success: Boolean!
}

type LogoutPayload {
  success: Boolean!
}

type Mutation {
  login(email: String!, password: String!): LoginPayload @rateLimit(threshold: 5, interval: 15)
  limitedLogin(email: String!, password: String!): LoginPayload
  logout: LogoutPayload
}
`

const (
	ExpensiveMessage = "This field has been expensive to run too many times"

	password         = "something secret"
	manualThreshold  = 5
	manualInterval   = 15 * time.Second
	loginFailureName = "loginFailure"
)

var errExpensive = errors.New(ExpensiveMessage)

func LoadSchema() (*ast.Schema, error) {
	return graphql.LoadSchema("demo.graphql", SDL)
}

// Resolvers devolve os resolvers do schema de demonstração. Os campos com
// contagem manual usam counter.ManualIncrement.
func Resolvers(counter ports.Analyzer) map[domain.OperationID]graphql.ResolverFunc {
	query := func(name string) domain.OperationID { return domain.OperationID{Category: "Query", Name: name} }
	mutation := func(name string) domain.OperationID { return domain.OperationID{Category: "Mutation", Name: name} }
	result := func(context.Context, map[string]any) (any, error) { return "result", nil }

	return map[domain.OperationID]graphql.ResolverFunc{
		query("inexpensiveField"): result,
		query("expensiveField"):   result,
		query("expensiveField2"):  result,

		query("sometimesExpensiveField"): func(ctx context.Context, _ map[string]any) (any, error) {
			status, err := counter.ManualIncrement(ctx, domain.ClientIdentityFromContext(ctx),
				"sometimesExpensiveField", manualThreshold, manualInterval)
			if err != nil {
				return nil, err
			}
			if status == domain.StatusExceeded {
				return nil, errExpensive
			}
			return "result", nil
		},

		mutation("login"): func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"user": user(args), "success": true}, nil
		},

		mutation("limitedLogin"): func(ctx context.Context, args map[string]any) (any, error) {
			if args["password"] == password {
				return map[string]any{"user": user(args), "success": true}, nil
			}

			// só logins que falharam contam
			status, err := counter.ManualIncrement(ctx, domain.ClientIdentityFromContext(ctx),
				loginFailureName, manualThreshold, manualInterval)
			if err != nil {
				return nil, err
			}
			if status == domain.StatusExceeded {
				return nil, errExpensive
			}
			return map[string]any{"user": nil, "success": false}, nil
		},

		mutation("logout"): func(context.Context, map[string]any) (any, error) {
			return map[string]any{"success": true}, nil
		},
	}
}

func user(args map[string]any) map[string]any {
	return map[string]any{
		"id":        "1",
		"firstName": "John",
		"lastName":  "Citizen",
		"email":     fmt.Sprint(args["email"]),
	}
}
